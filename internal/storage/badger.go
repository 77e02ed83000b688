package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"caevo/internal/model"
)

const (
	badgerGenomePrefix      = "genome/"
	badgerPopulationPrefix  = "population/"
	badgerScapePrefix       = "scape/"
	badgerRunPrefix         = "run/"
	badgerHistoryPrefix     = "history/"
	badgerDiagnosticsPrefix = "diagnostics/"
	badgerTopPrefix         = "top/"
	badgerLineagePrefix     = "lineage/"
)

type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger
}

// BadgerStore keeps every record as a JSON value under "<kind>/<id>".
type BadgerStore struct {
	cfg BadgerConfig

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(cfg BadgerConfig) *BadgerStore {
	return &BadgerStore{cfg: cfg}
}

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if !s.cfg.InMemory && s.cfg.Path == "" {
		return errors.New("badger path is required")
	}

	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.cfg.Path, 0o750); err != nil {
			return fmt.Errorf("create badger directory %s: %w", s.cfg.Path, err)
		}
		opts = badger.DefaultOptions(s.cfg.Path)
	}
	opts = opts.WithSyncWrites(s.cfg.SyncWrites).WithNumVersionsToKeep(1)
	if s.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) SaveGenome(ctx context.Context, genome model.RuleGenome) error {
	payload, err := EncodeGenome(genome)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerGenomePrefix+genome.ID, payload)
}

func (s *BadgerStore) GetGenome(ctx context.Context, id string) (model.RuleGenome, bool, error) {
	return badgerGet(ctx, s, badgerGenomePrefix+id, DecodeGenome)
}

func (s *BadgerStore) SavePopulation(ctx context.Context, population model.Population) error {
	payload, err := EncodePopulation(population)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerPopulationPrefix+population.ID, payload)
}

func (s *BadgerStore) GetPopulation(ctx context.Context, id string) (model.Population, bool, error) {
	return badgerGet(ctx, s, badgerPopulationPrefix+id, DecodePopulation)
}

func (s *BadgerStore) SaveScapeSummary(ctx context.Context, summary model.ScapeSummary) error {
	payload, err := EncodeScapeSummary(summary)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerScapePrefix+summary.Name, payload)
}

func (s *BadgerStore) GetScapeSummary(ctx context.Context, name string) (model.ScapeSummary, bool, error) {
	return badgerGet(ctx, s, badgerScapePrefix+name, DecodeScapeSummary)
}

func (s *BadgerStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerRunPrefix+run.ID, payload)
}

func (s *BadgerStore) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	return badgerGet(ctx, s, badgerRunPrefix+runID, DecodeRun)
}

func (s *BadgerStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var runs []model.RunRecord
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerRunPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				run, err := DecodeRun(val)
				if err != nil {
					return fmt.Errorf("decode run %s: %w", item.Key(), err)
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *BadgerStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerHistoryPrefix+runID, payload)
}

func (s *BadgerStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	return badgerGet(ctx, s, badgerHistoryPrefix+runID, DecodeFitnessHistory)
}

func (s *BadgerStore) SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerDiagnosticsPrefix+runID, payload)
}

func (s *BadgerStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	return badgerGet(ctx, s, badgerDiagnosticsPrefix+runID, DecodeGenerationDiagnostics)
}

func (s *BadgerStore) SaveTopGenomes(ctx context.Context, runID string, top []model.TopGenomeRecord) error {
	payload, err := EncodeTopGenomes(top)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerTopPrefix+runID, payload)
}

func (s *BadgerStore) GetTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	return badgerGet(ctx, s, badgerTopPrefix+runID, DecodeTopGenomes)
}

func (s *BadgerStore) SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.put(ctx, badgerLineagePrefix+runID, payload)
}

func (s *BadgerStore) GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error) {
	return badgerGet(ctx, s, badgerLineagePrefix+runID, DecodeLineage)
}

func (s *BadgerStore) put(ctx context.Context, key string, payload []byte) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
}

func badgerGet[T any](ctx context.Context, s *BadgerStore, key string, decode func([]byte) (T, error)) (T, bool, error) {
	var zero T
	db, err := s.getDB(ctx)
	if err != nil {
		return zero, false, err
	}

	var payload []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	out, err := decode(payload)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

func (s *BadgerStore) getDB(ctx context.Context) (*badger.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
