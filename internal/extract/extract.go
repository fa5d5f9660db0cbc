// Package extract derives the searchable plain text of a collaborative
// document from its encoded CRDT state.
package extract

import (
	"strings"

	"plumenote-server/internal/crdt"
)

// blockKinds close a line of output once their subtree has been written, so
// paragraphs stay separate in the search index.
var blockKinds = map[string]struct{}{
	"paragraph":      {},
	"heading":        {},
	"blockquote":     {},
	"codeBlock":      {},
	"listItem":       {},
	"bulletList":     {},
	"orderedList":    {},
	"horizontalRule": {},
}

// Text returns the plain text of state, or nil when the document holds no
// non-whitespace text. It never returns a pointer to an empty string.
func Text(state []byte) (*string, error) {
	doc := crdt.NewDocument()
	defer doc.Close()

	if err := doc.ApplyUpdate(state); err != nil {
		return nil, err
	}

	root, err := doc.Tree(crdt.RootKey)
	if err != nil {
		return nil, err
	}

	w := &textWriter{}
	crdt.Walk(root, w)

	text := strings.TrimSpace(w.buf.String())
	if text == "" {
		return nil, nil
	}
	return &text, nil
}

type textWriter struct {
	buf strings.Builder
}

func (w *textWriter) VisitText(t crdt.Text) {
	w.buf.WriteString(t.Content)
}

func (w *textWriter) EnterBlock(*crdt.Block) {}

func (w *textWriter) LeaveBlock(b *crdt.Block) {
	if _, ok := blockKinds[b.Kind]; ok {
		w.buf.WriteByte('\n')
	}
}
