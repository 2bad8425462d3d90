package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type treeNode struct {
	node     models.ContentNode
	children []*treeNode
}

// ContentTree is an immutable view of one formation's content hierarchy.
// Instances are built once and shared read-only; a structure change produces
// a fresh tree that replaces the old one atomically in the registry.
type ContentTree struct {
	formationID string
	root        *treeNode
	index       map[string]*treeNode
	parents     map[string]string
	durations   map[string]int
	leafWeights map[string]float64
}

// BuildContentTree assembles and validates the tree for one formation. Only
// active nodes participate. A missing parent or a cycle is a structural bug
// on the authoring side and fails the whole build; it is never repaired here.
func BuildContentTree(formationID string, nodes []models.ContentNode) (*ContentTree, error) {
	t := &ContentTree{
		formationID: formationID,
		index:       make(map[string]*treeNode),
		parents:     make(map[string]string),
		durations:   make(map[string]int),
		leafWeights: make(map[string]float64),
	}

	for _, n := range nodes {
		if !n.Active {
			continue
		}
		if _, dup := t.index[n.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrStructure, fmt.Sprintf("duplicate node id %s", n.ID))
		}
		t.index[n.ID] = &treeNode{node: n}
	}
	if len(t.index) == 0 {
		return nil, appErrors.Clone(appErrors.ErrStructure, "formation has no active nodes")
	}

	for id, tn := range t.index {
		if tn.node.ParentID == nil {
			if tn.node.Kind != models.NodeKindFormation {
				return nil, appErrors.Clone(appErrors.ErrStructure, fmt.Sprintf("node %s has no parent but is not the formation root", id))
			}
			if t.root != nil {
				return nil, appErrors.Clone(appErrors.ErrStructure, "formation has multiple roots")
			}
			t.root = tn
			continue
		}
		parent, ok := t.index[*tn.node.ParentID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrStructure, fmt.Sprintf("node %s references missing parent %s", id, *tn.node.ParentID))
		}
		parent.children = append(parent.children, tn)
		t.parents[id] = parent.node.ID
	}
	if t.root == nil {
		return nil, appErrors.Clone(appErrors.ErrStructure, "formation root not found")
	}

	for _, tn := range t.index {
		sort.Slice(tn.children, func(i, j int) bool {
			return tn.children[i].node.OrderIndex < tn.children[j].node.OrderIndex
		})
		seen := make(map[int]struct{}, len(tn.children))
		for _, child := range tn.children {
			if _, dup := seen[child.node.OrderIndex]; dup {
				return nil, appErrors.Clone(appErrors.ErrStructure, fmt.Sprintf("duplicate order index %d under node %s", child.node.OrderIndex, tn.node.ID))
			}
			seen[child.node.OrderIndex] = struct{}{}
		}
	}

	if reached := t.countReachable(); reached != len(t.index) {
		return nil, appErrors.Clone(appErrors.ErrStructure, "content tree contains a cycle or detached subtree")
	}

	t.computeDurations(t.root)
	t.computeLeafWeights()
	return t, nil
}

// countReachable walks from the root; with parent links validated, any node
// not reached sits on a cycle or a detached island.
func (t *ContentTree) countReachable() int {
	count := 0
	var walk func(*treeNode)
	walk = func(tn *treeNode) {
		count++
		for _, child := range tn.children {
			walk(child)
		}
	}
	walk(t.root)
	return count
}

func (t *ContentTree) computeDurations(tn *treeNode) int {
	if len(tn.children) == 0 {
		t.durations[tn.node.ID] = tn.node.DurationMinutes
		return tn.node.DurationMinutes
	}
	total := 0
	for _, child := range tn.children {
		total += t.computeDurations(child)
	}
	t.durations[tn.node.ID] = total
	return total
}

// computeLeafWeights assigns each completable leaf a duration-proportional
// weight normalized to sum 1.0 across the formation. Chapters without any
// exercise or QCM descendants count as viewable leaves so that reading-only
// chapters still contribute to completion.
func (t *ContentTree) computeLeafWeights() {
	leaves := t.completableLeaves()
	totalMinutes := 0
	for _, id := range leaves {
		totalMinutes += maxInt(t.durations[id], 1)
	}
	if totalMinutes == 0 {
		return
	}
	for _, id := range leaves {
		t.leafWeights[id] = float64(maxInt(t.durations[id], 1)) / float64(totalMinutes)
	}
}

func (t *ContentTree) completableLeaves() []string {
	var leaves []string
	var walk func(*treeNode) bool
	walk = func(tn *treeNode) bool {
		if tn.node.Kind.Completable() {
			leaves = append(leaves, tn.node.ID)
			return true
		}
		found := false
		for _, child := range tn.children {
			if walk(child) {
				found = true
			}
		}
		if !found && tn.node.Kind == models.NodeKindChapter {
			leaves = append(leaves, tn.node.ID)
			return true
		}
		return found
	}
	walk(t.root)
	sort.Strings(leaves)
	return leaves
}

// FormationID returns the formation this tree describes.
func (t *ContentTree) FormationID() string {
	return t.formationID
}

// TotalDurationMinutes returns the formation's total leaf minutes.
func (t *ContentTree) TotalDurationMinutes() int {
	return t.durations[t.root.node.ID]
}

// DurationOf returns the total leaf minutes under a node.
func (t *ContentTree) DurationOf(nodeID string) (int, error) {
	d, ok := t.durations[nodeID]
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("node %s not in formation %s", nodeID, t.formationID))
	}
	return d, nil
}

// LeafWeights returns a copy of the normalized completable-leaf weights.
func (t *ContentTree) LeafWeights() map[string]float64 {
	out := make(map[string]float64, len(t.leafWeights))
	for id, w := range t.leafWeights {
		out[id] = w
	}
	return out
}

// Node returns the node by id.
func (t *ContentTree) Node(id string) (models.ContentNode, bool) {
	tn, ok := t.index[id]
	if !ok {
		return models.ContentNode{}, false
	}
	return tn.node, true
}

// IsLeaf reports whether id is a completable leaf in this tree.
func (t *ContentTree) IsLeaf(id string) bool {
	_, ok := t.leafWeights[id]
	return ok
}

// Ancestors returns the chain from the leaf's parent up to the root.
func (t *ContentTree) Ancestors(id string) []string {
	var chain []string
	for {
		parent, ok := t.parents[id]
		if !ok {
			return chain
		}
		chain = append(chain, parent)
		id = parent
	}
}

// LeavesUnder returns the completable leaves in the subtree rooted at nodeID.
func (t *ContentTree) LeavesUnder(nodeID string) []string {
	start, ok := t.index[nodeID]
	if !ok {
		return nil
	}
	var leaves []string
	var walk func(*treeNode)
	walk = func(tn *treeNode) {
		if _, isLeaf := t.leafWeights[tn.node.ID]; isLeaf {
			leaves = append(leaves, tn.node.ID)
			return
		}
		for _, child := range tn.children {
			walk(child)
		}
	}
	walk(start)
	return leaves
}

// NodesOfKind lists node ids of the given kind in document order.
func (t *ContentTree) NodesOfKind(kind models.NodeKind) []string {
	var ids []string
	var walk func(*treeNode)
	walk = func(tn *treeNode) {
		if tn.node.Kind == kind {
			ids = append(ids, tn.node.ID)
		}
		for _, child := range tn.children {
			walk(child)
		}
	}
	walk(t.root)
	return ids
}

type contentNodeRepository interface {
	ListByFormation(ctx context.Context, formationID string) ([]models.ContentNode, error)
}

// ContentTreeService maintains one immutable tree per formation and swaps in
// a rebuilt tree when the authoring side signals a structure change.
type ContentTreeService struct {
	repo   contentNodeRepository
	logger *zap.Logger

	mu    sync.RWMutex
	trees map[string]*ContentTree
}

// NewContentTreeService constructs the registry.
func NewContentTreeService(repo contentNodeRepository, logger *zap.Logger) *ContentTreeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentTreeService{repo: repo, logger: logger, trees: make(map[string]*ContentTree)}
}

// Tree returns the current tree for a formation, loading it on first use.
func (s *ContentTreeService) Tree(ctx context.Context, formationID string) (*ContentTree, error) {
	s.mu.RLock()
	tree, ok := s.trees[formationID]
	s.mu.RUnlock()
	if ok {
		return tree, nil
	}
	return s.Rebuild(ctx, formationID)
}

// Rebuild fetches the formation's nodes and swaps in a fresh tree. Readers
// holding the previous tree keep a consistent snapshot.
func (s *ContentTreeService) Rebuild(ctx context.Context, formationID string) (*ContentTree, error) {
	nodes, err := s.repo.ListByFormation(ctx, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content nodes")
	}
	tree, err := BuildContentTree(formationID, nodes)
	if err != nil {
		s.logger.Error("content tree rebuild rejected",
			zap.String("formation_id", formationID), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	s.trees[formationID] = tree
	s.mu.Unlock()

	s.logger.Info("content tree rebuilt",
		zap.String("formation_id", formationID),
		zap.Int("leaves", len(tree.leafWeights)))
	return tree, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
