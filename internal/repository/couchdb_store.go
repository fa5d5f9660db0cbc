package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"plumenote-server/internal/domain"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"go.uber.org/zap"
)

type CouchDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (c CouchDBConfig) URL() string {
	u := url.URL{
		Scheme: "http",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%s", c.Host, c.Port),
	}
	return u.String()
}

type couchStore struct {
	client   *kivik.Client
	dbName   string
	notes    *couchNoteRepository
	versions *couchNoteVersionRepository
	logger   *zap.Logger
}

// OpenCouchDB connects to CouchDB, creating the database and the version id
// index when missing.
func OpenCouchDB(ctx context.Context, cfg CouchDBConfig, logger *zap.Logger) (Store, error) {
	client, err := kivik.New("couch", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, cfg.Name)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, cfg.Name); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		logger.Info("created database", zap.String("db", cfg.Name))
	}

	index := map[string]interface{}{
		"fields": []string{"type", "id"},
	}
	if err := client.DB(cfg.Name).CreateIndex(ctx, "versions", "by-type-id", index); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create version index: %w", err)
	}

	logger.Info("connected to CouchDB",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("db", cfg.Name),
	)

	return &couchStore{
		client:   client,
		dbName:   cfg.Name,
		notes:    &couchNoteRepository{client: client, dbName: cfg.Name},
		versions: &couchNoteVersionRepository{client: client, dbName: cfg.Name},
		logger:   logger,
	}, nil
}

func (s *couchStore) Notes() NoteRepository           { return s.notes }
func (s *couchStore) Versions() NoteVersionRepository { return s.versions }

// Restore captures the pre-restore version from the note document it reads,
// writes it, then writes the note guarded by the revision it was read at. Any
// edit saved in between makes the note write conflict. CouchDB has no
// multi-document transactions, so a failed note write removes the version
// again before returning.
func (s *couchStore) Restore(ctx context.Context, tx *RestoreTx) error {
	db := s.client.DB(s.dbName)
	docID := noteDocID(tx.NoteID)

	var existingDoc map[string]interface{}
	if err := db.Get(ctx, docID).ScanDoc(&existingDoc); err != nil {
		return fmt.Errorf("failed to fetch note for restore: %w", translate(err))
	}

	current, err := noteFromDoc(existingDoc)
	if err != nil {
		return fmt.Errorf("failed to decode note for restore: %w", err)
	}
	tx.PreVersion.Capture(current)

	versionRev, err := s.versions.put(ctx, tx.PreVersion)
	if err != nil {
		return err
	}

	existingDoc["title"] = tx.Title
	existingDoc["content"] = tx.Content
	existingDoc["state"] = base64.StdEncoding.EncodeToString(tx.State)
	existingDoc["updated_at"] = tx.UpdatedAt

	if _, err := db.Put(ctx, docID, existingDoc); err != nil {
		err = translate(err)
		pre := versionDocID(tx.PreVersion.NoteID, tx.PreVersion.Version)
		if _, delErr := db.Delete(ctx, pre, versionRev); delErr != nil {
			s.logger.Error("failed to roll back restore version",
				zap.String("noteID", tx.NoteID),
				zap.String("docID", pre),
				zap.Error(delErr),
			)
		}
		return fmt.Errorf("failed to restore note: %w", err)
	}

	return nil
}

func noteFromDoc(doc map[string]interface{}) (*domain.Note, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var note domain.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *couchStore) Close() error {
	return s.client.Close()
}
