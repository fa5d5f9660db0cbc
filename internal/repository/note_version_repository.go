package repository

import (
	"context"
	"errors"
	"fmt"

	"plumenote-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type versionDoc struct {
	Type string `json:"type"`
	domain.NoteVersion
}

type couchNoteVersionRepository struct {
	client *kivik.Client
	dbName string
}

// versionDocID zero-pads the number so _all_docs key order is numeric order.
func versionDocID(noteID string, version int64) string {
	return fmt.Sprintf("version:%s:%012d", noteID, version)
}

func versionKeyRange(noteID string) (start, end string) {
	prefix := fmt.Sprintf("version:%s:", noteID)
	return prefix, prefix + "\ufff0"
}

func (r *couchNoteVersionRepository) Create(ctx context.Context, v *domain.NoteVersion) error {
	_, err := r.put(ctx, v)
	return err
}

func (r *couchNoteVersionRepository) put(ctx context.Context, v *domain.NoteVersion) (string, error) {
	db := r.client.DB(r.dbName)

	rev, err := db.Put(ctx, versionDocID(v.NoteID, v.Version), &versionDoc{Type: docTypeVersion, NoteVersion: *v})
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrConflict) {
			return "", ErrVersionExists
		}
		return "", fmt.Errorf("failed to save version: %w", err)
	}

	return rev, nil
}

func (r *couchNoteVersionRepository) FindByID(ctx context.Context, id string) (*domain.NoteVersion, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type": docTypeVersion,
			"id":   id,
		},
		"limit": 1,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query version: %w", translate(err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query version: %w", translate(err))
		}
		return nil, ErrNotFound
	}

	var version domain.NoteVersion
	if err := rows.ScanDoc(&version); err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	return &version, nil
}

func (r *couchNoteVersionRepository) Latest(ctx context.Context, noteID string) (*domain.NoteVersion, error) {
	versions, err := r.List(ctx, noteID, 1)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions[0], nil
}

func (r *couchNoteVersionRepository) List(ctx context.Context, noteID string, limit int) ([]*domain.NoteVersion, error) {
	db := r.client.DB(r.dbName)
	start, end := versionKeyRange(noteID)

	rows := db.AllDocs(ctx, kivik.Params(map[string]interface{}{
		"startkey":     end,
		"endkey":       start,
		"descending":   true,
		"include_docs": true,
		"limit":        limit,
	}))
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", translate(err))
	}
	defer rows.Close()

	var versions []*domain.NoteVersion
	for rows.Next() {
		var v domain.NoteVersion
		if err := rows.ScanDoc(&v); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", translate(err))
	}

	return versions, nil
}
