package pix2pix

// Render layers used by the hide-during-capture option.
const (
	LayerDefault = 0
	LayerHidden  = 31
)

// SceneNode is an object in the host's scene hierarchy whose render layer
// can be changed.
type SceneNode interface {
	Layer() int
	SetLayer(layer int)
	Children() []SceneNode
}

// SetLayerRecursive assigns layer to root and all of its descendants.
// The walk uses an explicit stack, so hierarchy depth is unbounded.
func SetLayerRecursive(root SceneNode, layer int) {
	if root == nil {
		return
	}
	stack := []SceneNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.SetLayer(layer)
		stack = append(stack, n.Children()...)
	}
}

// LayerGuard holds a set of subtrees moved to a hidden layer and puts them
// back on Restore.
type LayerGuard struct {
	nodes   []SceneNode
	restore int
	done    bool
}

// HideLayers moves every node in nodes (recursively) to hidden and returns
// a guard that moves them to restore.
func HideLayers(nodes []SceneNode, hidden, restore int) *LayerGuard {
	for _, n := range nodes {
		SetLayerRecursive(n, hidden)
	}
	return &LayerGuard{nodes: nodes, restore: restore}
}

// Restore moves the guarded subtrees back. Only the first call has an
// effect; a nil guard is valid.
func (g *LayerGuard) Restore() {
	if g == nil || g.done {
		return
	}
	g.done = true
	for _, n := range g.nodes {
		SetLayerRecursive(n, g.restore)
	}
}

// Active reports whether the guard still has subtrees hidden.
func (g *LayerGuard) Active() bool {
	return g != nil && !g.done
}
