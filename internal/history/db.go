// Package history keeps past suite runs in a local SQLite database.
package history

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/logger"
)

// Options configures the history database.
type Options struct {
	// Path is the database file; DefaultPath() when empty.
	Path string
	// Prefix is prepended to every table name.
	Prefix string
	Logger logger.Logger
}

// Store records suite runs.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database and migrates its schema.
func Open(opts Options) (*Store, error) {
	path := opts.Path
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, errx.Wrap(errx.KindConfig, err, "resolve history path")
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errx.Wrap(errx.KindConfig, err, "create history directory")
	}
	if opts.Prefix == "" {
		opts.Prefix = "pixellens_"
	}

	var gl glog.Interface = glog.Discard
	if opts.Logger != nil {
		gl = NewLogger(opts.Logger)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gl,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   opts.Prefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, errx.Wrap(errx.KindConfig, err, "open history database")
	}

	// SQLite allows one writer; parallel cases still finish into one run.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Run{}, &CaseRecord{}, &StepRecord{}); err != nil {
		return nil, errx.Wrap(errx.KindInternal, err, "migrate history database")
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DefaultPath returns the platform's per-user data location for the
// history database.
func DefaultPath() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, "Library", "Application Support")
	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(baseDir, "pixellens", "history.db"), nil
}
