package storage

import (
	"errors"
	"fmt"
	"log/slog"
)

var ErrUnknownStoreKind = errors.New("unsupported store backend")

const (
	KindMemory = "memory"
	KindBadger = "badger"
	KindSQLite = "sqlite"
)

// Options selects and configures a Store backend. Path is the badger
// directory or the sqlite database file; an empty badger path runs in memory.
type Options struct {
	Kind   string
	Path   string
	Logger *slog.Logger
}

func NewStore(opts Options) (Store, error) {
	switch opts.Kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindBadger:
		return NewBadgerStore(BadgerConfig{
			Path:     opts.Path,
			InMemory: opts.Path == "",
			Logger:   opts.Logger,
		}), nil
	case KindSQLite:
		return newSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStoreKind, opts.Kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

// DefaultPath is where a backend keeps its data when no path is given.
func DefaultPath(kind string) string {
	switch kind {
	case KindBadger:
		return "caevo.badger"
	case KindSQLite:
		return "caevo.db"
	default:
		return ""
	}
}
