package planner

import (
	"fmt"
	"strings"
	"sync"
)

// NodeStatus is the lifecycle state of a plan node.
type NodeStatus string

const (
	StatusPending NodeStatus = "PENDING"
	StatusActive  NodeStatus = "ACTIVE"
	StatusDone    NodeStatus = "DONE"
	StatusFailed  NodeStatus = "FAILED"
	StatusBlocked NodeStatus = "BLOCKED"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s NodeStatus) bool {
	switch s {
	case StatusPending, StatusActive, StatusDone, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Node is one step of the strategic plan.
type Node struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      NodeStatus `json:"status"`
	Children    []*Node    `json:"children,omitempty"`
}

// Tree holds the plan across planner turns. Merges are id-stable: a node
// keeps its identity and DONE state no matter how the planner rephrases
// the update. Tools may mutate the tree from parallel goroutines, so all
// access goes through the mutex.
type Tree struct {
	mu   sync.Mutex
	root *Node
}

func NewTree() *Tree {
	return &Tree{}
}

// Merge folds a planner update into the tree. A matching id updates that
// node in place (children recursively), an unknown id is appended under
// the root. DONE is sticky: no update can regress a finished node. After
// the fold, any FAILED node blocks every unfinished ancestor above it.
func (t *Tree) Merge(update *Node) {
	if update == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if update.Status == "" {
		update.Status = StatusPending
	}
	switch {
	case t.root == nil:
		normalize(update)
		t.root = update
	default:
		if target := findNode(t.root, update.ID); target != nil {
			mergeNode(target, update)
		} else {
			normalize(update)
			t.root.Children = append(t.root.Children, update)
		}
	}
	blockFailedAncestors(t.root)
}

// blockFailedAncestors walks bottom-up: a FAILED node anywhere in a
// subtree forces every unfinished ancestor to BLOCKED. DONE ancestors
// keep their status. Returns whether the subtree contains a failure.
func blockFailedAncestors(n *Node) bool {
	if n == nil {
		return false
	}
	failed := n.Status == StatusFailed
	for _, c := range n.Children {
		if blockFailedAncestors(c) {
			failed = true
		}
	}
	if failed && n.Status != StatusFailed && n.Status != StatusDone {
		n.Status = StatusBlocked
	}
	return failed
}

func normalize(n *Node) {
	if n.Status == "" || !ValidStatus(n.Status) {
		n.Status = StatusPending
	}
	for _, c := range n.Children {
		normalize(c)
	}
}

func mergeNode(dst, src *Node) {
	if src.Description != "" {
		dst.Description = src.Description
	}
	if ValidStatus(src.Status) && !(dst.Status == StatusDone && src.Status != StatusDone) {
		dst.Status = src.Status
	}
	for _, child := range src.Children {
		if existing := findChild(dst, child.ID); existing != nil {
			mergeNode(existing, child)
		} else {
			normalize(child)
			dst.Children = append(dst.Children, child)
		}
	}
}

func findChild(n *Node, id string) *Node {
	for _, c := range n.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func findNode(n *Node, id string) *Node {
	if n == nil {
		return nil
	}
	if n.ID == id {
		return n
	}
	for _, c := range n.Children {
		if found := findNode(c, id); found != nil {
			return found
		}
	}
	return nil
}

// Find returns the node with the given id, or nil.
func (t *Tree) Find(id string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return findNode(t.root, id)
}

// SetStatus updates one node. DONE stays sticky here too.
func (t *Tree) SetStatus(id string, status NodeStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := findNode(t.root, id)
	if n == nil || !ValidStatus(status) {
		return false
	}
	if n.Status == StatusDone && status != StatusDone {
		return false
	}
	n.Status = status
	if status == StatusFailed {
		blockFailedAncestors(t.root)
	}
	return true
}

// MarkFailed fails the node and blocks every ancestor up to the root:
// a failed step means nothing above it can complete as planned.
func (t *Tree) MarkFailed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := findPath(t.root, id, nil)
	if path == nil {
		return false
	}
	target := path[len(path)-1]
	target.Status = StatusFailed
	for _, ancestor := range path[:len(path)-1] {
		if ancestor.Status != StatusDone {
			ancestor.Status = StatusBlocked
		}
	}
	return true
}

func findPath(n *Node, id string, trail []*Node) []*Node {
	if n == nil {
		return nil
	}
	trail = append(trail, n)
	if n.ID == id {
		out := make([]*Node, len(trail))
		copy(out, trail)
		return out
	}
	for _, c := range n.Children {
		if found := findPath(c, id, trail); found != nil {
			return found
		}
	}
	return nil
}

// Empty reports whether the planner has produced a plan yet.
func (t *Tree) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root == nil
}

// AllDone reports whether every node in the tree is DONE.
func (t *Tree) AllDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return false
	}
	return allDone(t.root)
}

func allDone(n *Node) bool {
	if n.Status != StatusDone {
		return false
	}
	for _, c := range n.Children {
		if !allDone(c) {
			return false
		}
	}
	return true
}

// HasOpenNodes reports whether any node is still PENDING or ACTIVE.
func (t *Tree) HasOpenNodes() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return hasOpen(t.root)
}

func hasOpen(n *Node) bool {
	if n == nil {
		return false
	}
	if n.Status == StatusPending || n.Status == StatusActive {
		return true
	}
	for _, c := range n.Children {
		if hasOpen(c) {
			return true
		}
	}
	return false
}

// Render returns the indented checklist the planner sees each turn.
func (t *Tree) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == nil {
		return "(no plan yet)"
	}
	var b strings.Builder
	renderNode(&b, t.root, 0)
	return strings.TrimRight(b.String(), "\n")
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	fmt.Fprintf(b, "%s- [%s] %s: %s\n", strings.Repeat("  ", depth), n.Status, n.ID, n.Description)
	for _, c := range n.Children {
		renderNode(b, c, depth+1)
	}
}

// Snapshot returns a deep copy for safe external inspection.
func (t *Tree) Snapshot() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyNode(t.root)
}

func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, Description: n.Description, Status: n.Status}
	for _, c := range n.Children {
		out.Children = append(out.Children, copyNode(c))
	}
	return out
}
