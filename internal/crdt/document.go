package crdt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// RootKey names the fragment the editor binds its document to.
const RootKey = "default"

const (
	stateFormatV1 byte = 0x01
	textNodeType       = "text"
)

var (
	ErrMalformedUpdate = errors.New("crdt: malformed update")
	ErrClosed          = errors.New("crdt: document closed")
)

var openDocuments atomic.Int64

type wireNode struct {
	Type    string     `json:"type"`
	Text    string     `json:"text,omitempty"`
	Content []wireNode `json:"content,omitempty"`
}

type wireState struct {
	Fragments map[string][]wireNode `json:"fragments"`
}

// Document is a transient in-memory replica used to read encoded state.
// Merging is done by the collaboration runtime; ApplyUpdate here replaces
// every fragment present in the update. Callers must Close it.
type Document struct {
	fragments map[string][]wireNode
	closed    bool
}

func NewDocument() *Document {
	openDocuments.Add(1)
	return &Document{fragments: make(map[string][]wireNode)}
}

// OpenDocuments reports how many documents have been created and not closed.
func OpenDocuments() int64 {
	return openDocuments.Load()
}

func (d *Document) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.fragments = nil
	openDocuments.Add(-1)
}

func (d *Document) ApplyUpdate(update []byte) error {
	if d.closed {
		return ErrClosed
	}
	if len(update) == 0 || update[0] != stateFormatV1 {
		return ErrMalformedUpdate
	}

	var state wireState
	if err := json.Unmarshal(update[1:], &state); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	for key, nodes := range state.Fragments {
		d.fragments[key] = nodes
	}
	return nil
}

func (d *Document) EncodeState() ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}

	body, err := json.Marshal(wireState{Fragments: d.fragments})
	if err != nil {
		return nil, err
	}
	return append([]byte{stateFormatV1}, body...), nil
}

// Tree materializes fragment key as a block of kind "doc". A missing
// fragment yields an empty doc.
func (d *Document) Tree(key string) (*Block, error) {
	if d.closed {
		return nil, ErrClosed
	}

	root := &Block{Kind: "doc"}
	for _, w := range d.fragments[key] {
		n, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, n)
	}
	return root, nil
}

func (d *Document) SetFragment(key string, nodes []Node) error {
	if d.closed {
		return ErrClosed
	}

	wire := make([]wireNode, 0, len(nodes))
	for _, n := range nodes {
		wire = append(wire, toWire(n))
	}
	d.fragments[key] = wire
	return nil
}

// Encode builds a state whose root fragment holds nodes.
func Encode(nodes ...Node) ([]byte, error) {
	doc := NewDocument()
	defer doc.Close()

	if err := doc.SetFragment(RootKey, nodes); err != nil {
		return nil, err
	}
	return doc.EncodeState()
}

// FromText encodes plain text as a fresh state with one paragraph per line.
func FromText(text string) ([]byte, error) {
	var nodes []Node
	if text != "" {
		for _, line := range strings.Split(text, "\n") {
			nodes = append(nodes, Paragraph(line))
		}
	}
	return Encode(nodes...)
}

func fromWire(w wireNode) (Node, error) {
	if w.Type == "" {
		return nil, fmt.Errorf("%w: node without type", ErrMalformedUpdate)
	}
	if w.Type == textNodeType {
		return Text{Content: w.Text}, nil
	}

	b := &Block{Kind: w.Type}
	for _, c := range w.Content {
		child, err := fromWire(c)
		if err != nil {
			return nil, err
		}
		b.Children = append(b.Children, child)
	}
	return b, nil
}

func toWire(n Node) wireNode {
	switch n := n.(type) {
	case Text:
		return wireNode{Type: textNodeType, Text: n.Content}
	case *Block:
		w := wireNode{Type: n.Kind}
		for _, c := range n.Children {
			w.Content = append(w.Content, toWire(c))
		}
		return w
	}
	return wireNode{}
}
