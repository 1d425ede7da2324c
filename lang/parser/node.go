package parser

// Position locates a byte in the source text.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based, in bytes
}

// Node is one matched rule in a parse tree. Text is the matched span,
// copied out of the source buffer, so a Node never keeps the buffer
// alive. Children are the nested matches in source order.
type Node struct {
	Rule     Rule
	Text     string
	Pos      Position
	Children []*Node
}

// Child returns the i-th child, or nil if out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}

	return n.Children[i]
}

// First returns the first child matched by rule, or nil.
func (n *Node) First(rule Rule) *Node {
	for _, c := range n.Children {
		if c.Rule == rule {
			return c
		}
	}

	return nil
}

// All returns every child matched by rule, in source order.
func (n *Node) All(rule Rule) []*Node {
	var nodes []*Node

	for _, c := range n.Children {
		if c.Rule == rule {
			nodes = append(nodes, c)
		}
	}

	return nodes
}

func (n *Node) add(children ...*Node) {
	n.Children = append(n.Children, children...)
}
