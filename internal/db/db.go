package db

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultFile = "sfa-offline.db"

type Handle struct {
	DB     *gorm.DB
	Path   string
	Driver string
}

// Options – wybór backendu. Domyślnie czysty Go sqlite w katalogu aplikacji.
type Options struct {
	Driver string // sqlite | sqlite3 | mysql | postgres
	DSN    string // dla sqlite: ścieżka pliku (względna -> dir)
	Debug  bool
}

func OpenAt(dir string, opts Options) (*Handle, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	var (
		dial gorm.Dialector
		path string
	)
	switch driver {
	case "sqlite", "sqlite3":
		path = opts.DSN
		if path == "" {
			path = defaultFile
		}
		if !filepath.IsAbs(path) && !strings.HasPrefix(path, "file:") {
			path = filepath.Join(dir, path)
		}
		if driver == "sqlite" {
			dial = sqlite.Open(path)
		} else {
			dial = cgosqlite.Open(path)
		}
	case "mysql":
		path = opts.DSN
		dial = mysql.Open(opts.DSN)
	case "postgres":
		path = opts.DSN
		dial = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if opts.Debug {
		cfg.Logger = logger.Default.LogMode(logger.Info) // verbose SQL
	}
	gdb, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" || driver == "sqlite3" {
		// jedno połączenie: transakcje się serializują, brak "database is locked"
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &Handle{DB: gdb, Path: path, Driver: driver}, nil
}

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
