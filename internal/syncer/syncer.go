// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	conf "github.com/bartek5186/sfa-offline/internal/config"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Prober – sprawdzenie łączności (erp.Client.Health).
type Prober interface {
	Health(ctx context.Context) error
}

// DrainFunc – opróżnienie kolejki zapisów po powrocie sieci.
type DrainFunc func(ctx context.Context) error

// Syncer pilnuje łączności: pętla sond, synchronizacja + drenaż kolejki po
// powrocie do Online i opcjonalny harmonogram cron.
type Syncer struct {
	log     zerolog.Logger // logowanie
	mu      sync.Mutex     // ochrona sekcji krytycznych
	cfg     *conf.Config   // aktualna konfiguracja
	running bool           // czy syncer działa
	cancel  context.CancelFunc
	wg      sync.WaitGroup // śledzi goroutines
	ticks   uint64         // licznik sond
	user    UserContext

	engine  *Engine
	monitor *Monitor
	prober  Prober
	drain   DrainFunc

	cron  *cron.Cron
	unsub func()

	reconnecting bool
}

func New(log zerolog.Logger, cfg *conf.Config, engine *Engine, monitor *Monitor, prober Prober, drain DrainFunc) *Syncer {
	return &Syncer{
		log:     log.With().Str("component", "syncer").Logger(),
		cfg:     cfg,
		engine:  engine,
		monitor: monitor,
		prober:  prober,
		drain:   drain,
	}
}

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.ticks = 0

	s.unsub = s.monitor.Subscribe(func(online bool) {
		if online {
			s.onReconnect(ctx)
		}
	})

	if err := s.startCronLocked(ctx); err != nil {
		s.log.Error().Err(err).Msg("invalid sync schedule, cron disabled")
	}

	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: start")
	go s.loop(ctx)
	return nil
}

func (s *Syncer) startCronLocked(ctx context.Context) error {
	if s.cfg == nil || s.cfg.Sync.Schedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Sync.Schedule, func() { s.scheduledSync(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info().Str("schedule", s.cfg.Sync.Schedule).Msg("scheduled sync enabled")
	return nil
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	c := s.cron
	s.cron = nil
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.log.Info().Msg("Syncer: stop")
}

func (s *Syncer) UpdateConfig(cfg *conf.Config) {
	s.mu.Lock()
	s.cfg = cfg
	isRunning := s.running
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: config zaktualizowany")

	if isRunning {
		// restart, żeby cron i interwał wzięły nową konfigurację
		s.Stop()
		_ = s.Start(context.Background())
	}
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetUser – użytkownik bieżącej sesji, przekazywany do synchronizacji.
func (s *Syncer) SetUser(uc UserContext) {
	s.mu.Lock()
	s.user = uc
	s.mu.Unlock()
}

func (s *Syncer) currentUser() UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Syncer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil && s.cfg.ProbeIntervalSeconds > 0 {
		return s.cfg.ProbeInterval()
	}
	return 30 * time.Second
}

func (s *Syncer) probeTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil && s.cfg.Remote.TimeoutSeconds > 0 && s.cfg.RemoteTimeout() < 10*time.Second {
		return s.cfg.RemoteTimeout()
	}
	return 10 * time.Second
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	// pierwsza sonda od razu
	s.tickOnce(ctx)

	current := s.interval()
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Syncer: koniec pętli")
			return
		case <-ticker.C:
			// jeśli ktoś zmienił interwał w cfg, odśwież ticker
			if next := s.interval(); next != current {
				current = next
				ticker.Reset(current)
			}
			s.tickOnce(ctx)
		}
	}
}

// tickOnce – jedna sonda łączności. 4xx też znaczy, że serwer odpowiada.
func (s *Syncer) tickOnce(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout())
	defer cancel()
	err := s.prober.Health(pctx)
	if ctx.Err() != nil {
		return
	}
	online := err == nil || !domain.Transient(err)

	s.log.Debug().Uint64("probe", n).Bool("online", online).Err(err).Msg("Syncer: probe")
	if s.monitor.Set(online) {
		s.log.Info().Bool("online", online).Msg("connectivity changed")
	}
}

// onReconnect – best-effort sync + drenaż w tle; nigdy nie blokuje Set.
func (s *Syncer) onReconnect(ctx context.Context) {
	s.mu.Lock()
	if !s.running || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	syncFirst := s.cfg == nil || s.cfg.Sync.OnReconnect
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.reconnecting = false
			s.mu.Unlock()
		}()

		if syncFirst {
			res, err := s.engine.RunFullSync(ctx, s.currentUser())
			switch {
			case err != nil:
				s.log.Warn().Err(err).Msg("reconnect sync aborted")
			case !res.Success:
				s.log.Warn().Strs("stale", res.Stale).Msg("reconnect sync partial")
			}
		}
		if s.drain != nil {
			if err := s.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn().Err(err).Msg("reconnect drain failed")
			}
		}
	}()
}

func (s *Syncer) scheduledSync(ctx context.Context) {
	if !s.monitor.Online() {
		s.log.Debug().Msg("scheduled sync skipped: offline")
		return
	}
	_, err := s.engine.TryRunFullSync(ctx, s.currentUser())
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		s.log.Info().Msg("Sync already running, skipping scheduled run")
	case err != nil:
		s.log.Warn().Err(err).Msg("scheduled sync failed")
	}
}
