package builder

// Node is one module of a bundle request, identified by its canonical
// absolute path.
type Node struct {
	Path     string
	Contents []byte

	// Requires holds the direct dependencies found by the scanner.
	Requires []string

	// Depends starts as a copy of Requires and grows to the transitive
	// closure when the graph is expanded. It never shrinks.
	Depends []string

	depends map[string]struct{}
}

func NewNode(path string, contents []byte, requires []string) *Node {
	n := &Node{
		Path:     path,
		Contents: contents,
		Requires: requires,
		depends:  make(map[string]struct{}, len(requires)),
	}
	for _, p := range requires {
		n.add(p)
	}
	return n
}

// DependsOn reports whether path is in the node's current dependency list.
func (n *Node) DependsOn(path string) bool {
	_, ok := n.depends[path]
	return ok
}

func (n *Node) add(path string) bool {
	if _, ok := n.depends[path]; ok {
		return false
	}
	n.depends[path] = struct{}{}
	n.Depends = append(n.Depends, path)
	return true
}

// Graph holds the modules of one bundle request in discovery order.
type Graph struct {
	nodes []*Node
	index map[string]*Node
}

func NewGraph() *Graph {
	return &Graph{index: make(map[string]*Node)}
}

// Add registers n. A node whose path is already known is ignored and false
// is returned.
func (g *Graph) Add(n *Node) bool {
	if _, ok := g.index[n.Path]; ok {
		return false
	}
	g.index[n.Path] = n
	g.nodes = append(g.nodes, n)
	return true
}

// Nodes returns the nodes in discovery order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Get returns the current dependency list of path, or nil for an unknown
// path.
func (g *Graph) Get(path string) []string {
	if n, ok := g.index[path]; ok {
		return n.Depends
	}
	return nil
}

// Expand closes every dependency list: each node takes in the lists of its
// direct dependencies until a full pass adds nothing. The lists are bounded
// by the number of distinct paths, so this terminates with cycles too.
func (g *Graph) Expand() *Graph {
	for grown := true; grown; {
		grown = false
		for _, n := range g.nodes {
			for _, p := range n.Requires {
				for _, dep := range g.Get(p) {
					if n.add(dep) {
						grown = true
					}
				}
			}
		}
	}
	return g
}

// Compare orders two nodes. It returns -1 when b depends on a (a goes
// first) and +1 when a depends on b; 0 means no constraint. When both
// depend on each other it returns -1 and reports the cycle. The sign of a
// cyclic pair is informational: Sort leaves such pairs unconstrained.
func (*Graph) Compare(a, b *Node) (int, bool) {
	bNeedsA := b.DependsOn(a.Path)
	aNeedsB := a.DependsOn(b.Path)

	switch {
	case bNeedsA && aNeedsB:
		return -1, true
	case bNeedsA:
		return -1, false
	case aNeedsB:
		return 1, false
	}
	return 0, false
}

// Sort returns the nodes so that every module comes after the modules it
// depends on. Unconstrained nodes, and the two members of a cycle, keep
// their discovery order. Each cyclic pair is reported once.
func (g *Graph) Sort() ([]*Node, []CycleWarning) {
	n := len(g.nodes)
	after := make([][]int, n) // after[i]: nodes that must follow i
	blockers := make([]int, n)

	var warnings []CycleWarning
	for i := range n {
		for j := i + 1; j < n; j++ {
			order, cycle := g.Compare(g.nodes[i], g.nodes[j])
			switch {
			case cycle:
				warnings = append(warnings, CycleWarning{A: g.nodes[i].Path, B: g.nodes[j].Path})
			case order < 0:
				after[i] = append(after[i], j)
				blockers[j]++
			case order > 0:
				after[j] = append(after[j], i)
				blockers[i]++
			}
		}
	}

	sorted := make([]*Node, 0, n)
	done := make([]bool, n)
	for len(sorted) < n {
		next := -1
		for i := range n {
			if !done[i] && blockers[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			// Only reachable on an unexpanded graph with a longer cycle.
			for i := range n {
				if !done[i] {
					next = i
					break
				}
			}
		}

		done[next] = true
		sorted = append(sorted, g.nodes[next])
		for _, j := range after[next] {
			blockers[j]--
		}
	}

	return sorted, warnings
}
