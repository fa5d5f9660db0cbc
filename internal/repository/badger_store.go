package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"plumenote-server/internal/domain"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type BadgerConfig struct {
	// Path is ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

type badgerStore struct {
	db *badger.DB
}

// OpenBadger opens an embedded store. Every restore runs inside a single
// badger transaction.
func OpenBadger(cfg BadgerConfig, logger *zap.Logger) (Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Notes() NoteRepository           { return (*badgerNotes)(s) }
func (s *badgerStore) Versions() NoteVersionRepository { return (*badgerVersions)(s) }

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func noteKey(id string) []byte {
	return []byte("note/" + id)
}

func versionPrefix(noteID string) []byte {
	return []byte("version/" + noteID + "/")
}

func versionKey(noteID string, version int64) []byte {
	return []byte(fmt.Sprintf("version/%s/%020d", noteID, version))
}

func versionIDKey(id string) []byte {
	return []byte("version-id/" + id)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// update runs fn in a read-write transaction. Commit conflicts surface as
// ErrConflict.
func (s *badgerStore) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

func insertVersion(txn *badger.Txn, v *domain.NoteVersion) error {
	key := versionKey(v.NoteID, v.Version)
	if _, err := txn.Get(key); err == nil {
		return ErrVersionExists
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	if err := setJSON(txn, key, v); err != nil {
		return err
	}
	return txn.Set(versionIDKey(v.ID), key)
}

func (s *badgerStore) Restore(ctx context.Context, tx *RestoreTx) error {
	err := s.update(func(txn *badger.Txn) error {
		var note domain.Note
		if err := getJSON(txn, noteKey(tx.NoteID), &note); err != nil {
			return err
		}

		tx.PreVersion.Capture(&note)
		if err := insertVersion(txn, tx.PreVersion); err != nil {
			return err
		}

		note.Title = tx.Title
		note.Content = tx.Content
		note.State = tx.State
		note.UpdatedAt = tx.UpdatedAt
		return setJSON(txn, noteKey(tx.NoteID), &note)
	})
	if errors.Is(err, ErrConflict) {
		return ErrVersionExists
	}
	if err != nil {
		return fmt.Errorf("failed to restore note: %w", err)
	}
	return nil
}

type badgerNotes badgerStore

func (r *badgerNotes) Create(ctx context.Context, note *domain.Note) error {
	return (*badgerStore)(r).update(func(txn *badger.Txn) error {
		return setJSON(txn, noteKey(note.ID), note)
	})
}

func (r *badgerNotes) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var note domain.Note
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, noteKey(id), &note)
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *badgerNotes) LoadState(ctx context.Context, id string) ([]byte, error) {
	note, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(note.State) == 0 {
		return nil, nil
	}
	return note.State, nil
}

func (r *badgerNotes) SaveState(ctx context.Context, id string, state []byte, content *string) error {
	return (*badgerStore)(r).update(func(txn *badger.Txn) error {
		var note domain.Note
		if err := getJSON(txn, noteKey(id), &note); err != nil {
			return err
		}

		note.State = state
		note.Content = content
		note.UpdatedAt = time.Now().UTC()
		return setJSON(txn, noteKey(id), &note)
	})
}

type badgerVersions badgerStore

func (r *badgerVersions) Create(ctx context.Context, v *domain.NoteVersion) error {
	err := (*badgerStore)(r).update(func(txn *badger.Txn) error {
		return insertVersion(txn, v)
	})
	if errors.Is(err, ErrConflict) {
		return ErrVersionExists
	}
	return err
}

func (r *badgerVersions) FindByID(ctx context.Context, id string) (*domain.NoteVersion, error) {
	var version domain.NoteVersion
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionIDKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &version)
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *badgerVersions) Latest(ctx context.Context, noteID string) (*domain.NoteVersion, error) {
	versions, err := r.List(ctx, noteID, 1)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions[0], nil
}

func (r *badgerVersions) List(ctx context.Context, noteID string, limit int) ([]*domain.NoteVersion, error) {
	prefix := versionPrefix(noteID)
	var versions []*domain.NoteVersion

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(versions) >= limit {
				break
			}

			var v domain.NoteVersion
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return err
			}
			versions = append(versions, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}
