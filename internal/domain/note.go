package domain

import "time"

// Note is owned by the notes CRUD service; this server reads it and writes
// only the collaborative state, the derived text and restores.
type Note struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`

	// State is the encoded CRDT document. Content is the plain text derived
	// from it, nil when the document has no text.
	State   []byte  `json:"state,omitempty"`
	Content *string `json:"content"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlainText returns the derived text, or "" when there is none.
func (n *Note) PlainText() string {
	if n.Content == nil {
		return ""
	}
	return *n.Content
}
