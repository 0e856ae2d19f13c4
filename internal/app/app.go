// Package app składa komponenty w działający proces (wspólne dla CLI i tray).
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/bartek5186/sfa-offline/internal/api"
	"github.com/bartek5186/sfa-offline/internal/catalog"
	"github.com/bartek5186/sfa-offline/internal/collections"
	conf "github.com/bartek5186/sfa-offline/internal/config"
	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/erp"
	"github.com/bartek5186/sfa-offline/internal/logs"
	"github.com/bartek5186/sfa-offline/internal/metrics"
	"github.com/bartek5186/sfa-offline/internal/outbox"
	"github.com/bartek5186/sfa-offline/internal/session"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/bartek5186/sfa-offline/internal/syncer"
	"github.com/bartek5186/sfa-offline/internal/vault"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const kvDeviceID = "device.id"

type App struct {
	Dir     string
	CfgPath string
	LogPath string

	Log zerolog.Logger

	DB      *db.Handle
	Store   *store.Store
	Remote  *erp.Client
	Engine  *syncer.Engine
	Monitor *syncer.Monitor
	Syncer  *syncer.Syncer
	Outbox  *outbox.Outbox
	Session *session.Manager
	Catalog *catalog.Catalog
	API     *api.Server

	mu  sync.Mutex
	cfg *conf.Config
}

// New czyta config, otwiera bazę i składa wszystkie komponenty. Nic jeszcze nie startuje.
func New(dir string, console bool) (*App, error) {
	a := &App{
		Dir:     dir,
		CfgPath: filepath.Join(dir, "config.json"),
		LogPath: filepath.Join(dir, "app.log"),
	}

	cfg, firstRun, err := conf.Load(a.CfgPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.Log = logs.New(a.LogPath, console, cfg.LogLevel)
	if firstRun {
		a.Log.Info().Str("path", a.CfgPath).Msg("default config created")
	}

	a.DB, err = db.OpenAt(dir, db.Options{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN, Debug: cfg.Store.Debug})
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", domain.ErrStorageUnavailable, err)
	}
	if err := a.DB.Migrate(); err != nil {
		_ = a.DB.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStorageUnavailable, err)
	}
	a.Log.Info().Str("db", a.DB.Path).Str("driver", a.DB.Driver).Msg("DB ready")

	a.Store = store.New(a.Log, a.DB.DB)
	deviceID, err := a.deviceID(context.Background())
	if err != nil {
		_ = a.DB.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a.Remote = erp.New(a.Log, erp.Config{
		BaseURL:    cfg.Remote.BaseURL,
		Token:      cfg.Remote.Token,
		Timeout:    cfg.RemoteTimeout(),
		UserAgent:  cfg.Remote.UserAgent,
		DeviceID:   deviceID,
		LoginPath:  cfg.Remote.LoginPath,
		HealthPath: cfg.Remote.HealthPath,
	})
	a.Engine = syncer.NewEngine(a.Log, a.Store, a.Remote,
		collections.WithPaths(collections.All(), cfg.Remote.Paths),
		syncer.EngineOptions{FetchTimeout: cfg.RemoteTimeout(), PassTimeout: cfg.SyncTimeout(), Metrics: m})
	a.Monitor = syncer.NewMonitor(false, m)
	a.Outbox = outbox.New(a.Log, a.DB.DB, a.Store, a.Remote, a.Monitor, outbox.Options{
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Parallelism: cfg.Outbox.Parallelism,
		Metrics:     m,
	})
	a.Syncer = syncer.New(a.Log, cfg, a.Engine, a.Monitor, a.Remote, func(ctx context.Context) error {
		_, err := a.Outbox.Drain(ctx)
		return err
	})
	a.Session = session.New(a.Log, a.Remote, vault.New(a.Log, a.DB.DB, cfg.Password), a.Store, a.Engine)
	a.Session.OnUserChange(a.Syncer.SetUser)
	a.Catalog = catalog.New(a.Log, a.Store)

	if cfg.API.Enabled {
		a.API = api.New(a.Log, cfg.API.Listen, api.Deps{
			Catalog:  a.Catalog,
			Sync:     a.Engine,
			Sessions: a.Session,
			Writes:   a.Outbox,
			Conn:     a.Monitor,
			Gatherer: reg,
		})
	}
	return a, nil
}

func (a *App) deviceID(ctx context.Context) (string, error) {
	id, err := a.Store.GetKV(ctx, kvDeviceID)
	if err != nil || id != "" {
		return id, err
	}
	id = uuid.NewString()
	if err := a.Store.SetKV(ctx, kvDeviceID, id); err != nil {
		return "", err
	}
	a.Log.Info().Str("device_id", id).Msg("device registered")
	return id, nil
}

func (a *App) Config() *conf.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Serve – sesja z poprzedniego uruchomienia + lokalne API. Błąd bindowania API jest fatalny.
func (a *App) Serve(ctx context.Context) error {
	if u, ok, err := a.Session.Restore(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("session restore failed")
	} else if ok {
		a.Log.Info().Str("email", u.Email).Msg("session restored")
	}
	if a.API != nil {
		return a.API.Start()
	}
	return nil
}

// Start uruchamia pętlę łączności i harmonogram.
func (a *App) Start(ctx context.Context) error {
	return a.Syncer.Start(ctx)
}

func (a *App) Stop() {
	a.Syncer.Stop()
}

// Reload wczytuje config ponownie. Zmiany sieci/bazy wymagają restartu.
func (a *App) Reload() error {
	cfg, _, err := conf.Load(a.CfgPath)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.Syncer.UpdateConfig(cfg)
	a.Log.Info().Msg("config reloaded")
	return nil
}

// Close zatrzymuje wszystko i zamyka bazę.
func (a *App) Close() {
	a.Syncer.Stop()
	if a.API != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.API.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.Log.Warn().Err(err).Msg("api shutdown")
		}
		cancel()
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("db close")
	}
}

func MustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}

// przenośne otwieranie plików/katalogów w domyślnej aplikacji
func OpenInExplorer(path string) {
	switch runtime.GOOS {
	case "windows":
		_ = exec.Command("cmd", "/C", "start", "", path).Start()
	case "darwin":
		_ = exec.Command("open", path).Start()
	default:
		_ = exec.Command("xdg-open", path).Start()
	}
}
