package crdt

// Node is one element of a document tree: a Text leaf or a Block.
type Node interface {
	node()
}

type Text struct {
	Content string
}

// Block is any non-text element. Kind is the schema node name, for example
// "paragraph" or "bulletList".
type Block struct {
	Kind     string
	Children []Node
}

func (Text) node()   {}
func (*Block) node() {}

type Visitor interface {
	VisitText(t Text)
	EnterBlock(b *Block)
	LeaveBlock(b *Block)
}

// Walk traverses n depth first. LeaveBlock runs after all of a block's
// descendants have been visited.
func Walk(n Node, v Visitor) {
	switch n := n.(type) {
	case Text:
		v.VisitText(n)
	case *Block:
		v.EnterBlock(n)
		for _, child := range n.Children {
			Walk(child, v)
		}
		v.LeaveBlock(n)
	}
}

func Paragraph(text string) *Block {
	b := &Block{Kind: "paragraph"}
	if text != "" {
		b.Children = []Node{Text{Content: text}}
	}
	return b
}
