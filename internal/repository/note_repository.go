package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"plumenote-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const (
	docTypeNote    = "note"
	docTypeVersion = "note_version"
)

// noteDoc is the CouchDB shape of a note. Updates go through a generic map
// so fields written by the notes CRUD service survive.
type noteDoc struct {
	Type string `json:"type"`
	domain.Note
}

type couchNoteRepository struct {
	client *kivik.Client
	dbName string
}

func noteDocID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func (r *couchNoteRepository) Create(ctx context.Context, note *domain.Note) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(ctx, noteDocID(note.ID), &noteDoc{Type: docTypeNote, Note: *note})
	if err != nil {
		return fmt.Errorf("failed to create note: %w", translate(err))
	}

	return nil
}

func (r *couchNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	db := r.client.DB(r.dbName)

	var note domain.Note
	if err := db.Get(ctx, noteDocID(id)).ScanDoc(&note); err != nil {
		return nil, fmt.Errorf("failed to find note: %w", translate(err))
	}

	return &note, nil
}

func (r *couchNoteRepository) LoadState(ctx context.Context, id string) ([]byte, error) {
	db := r.client.DB(r.dbName)

	var doc struct {
		State []byte `json:"state"`
	}
	if err := db.Get(ctx, noteDocID(id)).ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to load note state: %w", translate(err))
	}

	if len(doc.State) == 0 {
		return nil, nil
	}
	return doc.State, nil
}

func (r *couchNoteRepository) SaveState(ctx context.Context, id string, state []byte, content *string) error {
	db := r.client.DB(r.dbName)
	docID := noteDocID(id)

	var existingDoc map[string]interface{}
	if err := db.Get(ctx, docID).ScanDoc(&existingDoc); err != nil {
		return fmt.Errorf("failed to fetch note for state update: %w", translate(err))
	}

	existingDoc["state"] = base64.StdEncoding.EncodeToString(state)
	existingDoc["content"] = content
	existingDoc["updated_at"] = time.Now().UTC()

	if _, err := db.Put(ctx, docID, existingDoc); err != nil {
		return fmt.Errorf("failed to save note state: %w", translate(err))
	}

	return nil
}

// translate maps CouchDB status codes onto repository errors.
func translate(err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
