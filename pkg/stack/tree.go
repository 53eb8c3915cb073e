package stack

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/xlab/treeprint"
)

// Node is a function on a call path, aggregated over every call that
// reached it through the same path.
type Node struct {
	Function string
	Calls    int
	Total    int64
	Self     int64
	Children []*Node

	index map[string]*Node
}

func (n *Node) child(name string) *Node {
	if c, ok := n.index[name]; ok {
		return c
	}
	if n.index == nil {
		n.index = make(map[string]*Node)
	}
	c := &Node{Function: name}
	n.index[name] = c
	n.Children = append(n.Children, c)
	return c
}

func (n *Node) sort() {
	slices.SortFunc(n.Children, func(a, b *Node) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Function, b.Function)
	})
	for _, c := range n.Children {
		c.sort()
	}
}

// CallTree folds the laid-out spans into a tree of call paths. A span is
// attached below the innermost preceding span that contains it at a lower
// depth. The returned root is unnamed; its Total is the sum over the top
// level functions.
func (r *Result) CallTree() *Node {
	type frame struct {
		start, end int64
		depth      float64
		node       *Node
	}
	root := &Node{}
	var path []frame
	for _, s := range r.Spans {
		for len(path) > 0 {
			top := path[len(path)-1]
			if top.depth < s.Depth && top.start <= s.StartTime && s.EndTime <= top.end {
				break
			}
			path = path[:len(path)-1]
		}
		parent := root
		if len(path) > 0 {
			parent = path[len(path)-1].node
		}
		n := parent.child(s.FunctionName)
		n.Calls++
		n.Total += s.Duration
		n.Self += s.InnerDuration
		path = append(path, frame{start: s.StartTime, end: s.EndTime, depth: s.Depth, node: n})
	}
	for _, c := range root.Children {
		root.Total += c.Total
	}
	root.sort()
	return root
}

func (n *Node) describe() string {
	return fmt.Sprintf("%s: calls %d self %s total %s", n.Function, n.Calls, time.Duration(n.Self), time.Duration(n.Total))
}

// String renders the tree below n, one branch per call path.
func (n *Node) String() string {
	type branch struct {
		nodes []*Node
		treeprint.Tree
	}
	tree := treeprint.New()
	remaining := []*branch{{nodes: n.Children, Tree: tree}}
	for len(remaining) > 0 {
		current := remaining[0]
		remaining = remaining[1:]
		for _, c := range current.nodes {
			if len(c.Children) > 0 {
				remaining = append(remaining, &branch{nodes: c.Children, Tree: current.AddBranch(c.describe())})
			} else {
				current.AddNode(c.describe())
			}
		}
	}
	return tree.String()
}
