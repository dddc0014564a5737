package matrix

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const prefixRun = "run:"

// Run is one persisted matrix execution.
type Run struct {
	ID      uuid.UUID `json:"id"`
	Time    time.Time `json:"time"`
	Results []Result  `json:"results"`
	Summary Summary   `json:"summary"`
}

// Store keeps run history in a Badger database so past matrix executions
// can be compared.
type Store struct {
	db *badger.DB
}

// OpenStore opens or creates the history database at path.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a run and returns its assigned ID.
func (s *Store) SaveRun(results []Result, summary Summary) (uuid.UUID, error) {
	run := Run{
		ID:      uuid.New(),
		Time:    time.Now().UTC(),
		Results: results,
		Summary: summary,
	}

	data, err := json.Marshal(run)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode run: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixRun+run.ID.String()), data)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(id uuid.UUID) (*Run, error) {
	var run Run

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRun + id.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns all runs, newest first. Results are omitted; load a
// specific run for the full rows.
func (s *Store) ListRuns() ([]Run, error) {
	var runs []Run

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					return nil // skip corrupt entries
				}
				run.Results = nil
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
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Time.After(runs[j].Time)
	})
	return runs, nil
}
