package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func formationFixture() []models.ContentNode {
	return []models.ContentNode{
		{ID: "root", FormationID: "f1", Kind: models.NodeKindFormation, OrderIndex: 0, Active: true},
		{ID: "m1", FormationID: "f1", ParentID: strPtr("root"), Kind: models.NodeKindModule, OrderIndex: 1, Active: true},
		{ID: "m2", FormationID: "f1", ParentID: strPtr("root"), Kind: models.NodeKindModule, OrderIndex: 2, Active: true},
		{ID: "c1", FormationID: "f1", ParentID: strPtr("m1"), Kind: models.NodeKindChapter, OrderIndex: 1, Active: true},
		{ID: "c2", FormationID: "f1", ParentID: strPtr("m2"), Kind: models.NodeKindChapter, OrderIndex: 1, Active: true},
		{ID: "e1", FormationID: "f1", ParentID: strPtr("c1"), Kind: models.NodeKindExercise, OrderIndex: 1, DurationMinutes: 60, Active: true},
		{ID: "q1", FormationID: "f1", ParentID: strPtr("c2"), Kind: models.NodeKindQCM, OrderIndex: 1, DurationMinutes: 40, PassingScore: floatPtr(80), Active: true},
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestBuildContentTreeWeights(t *testing.T) {
	tree, err := BuildContentTree("f1", formationFixture())
	require.NoError(t, err)

	weights := tree.LeafWeights()
	require.Len(t, weights, 2)
	assert.InDelta(t, 0.6, weights["e1"], 1e-9)
	assert.InDelta(t, 0.4, weights["q1"], 1e-9)
	assert.Equal(t, 100, tree.TotalDurationMinutes())

	d, err := tree.DurationOf("m1")
	require.NoError(t, err)
	assert.Equal(t, 60, d)
}

func TestBuildContentTreeReadingOnlyChapterIsLeaf(t *testing.T) {
	nodes := append(formationFixture(),
		models.ContentNode{ID: "c3", FormationID: "f1", ParentID: strPtr("m2"), Kind: models.NodeKindChapter, OrderIndex: 2, DurationMinutes: 20, Active: true},
		models.ContentNode{ID: "co1", FormationID: "f1", ParentID: strPtr("c3"), Kind: models.NodeKindCourse, OrderIndex: 1, DurationMinutes: 20, Active: true},
	)
	tree, err := BuildContentTree("f1", nodes)
	require.NoError(t, err)

	assert.True(t, tree.IsLeaf("c3"), "chapter without exercise or QCM descendants should be a viewable leaf")
	assert.False(t, tree.IsLeaf("c1"), "chapter with an exercise descendant is not a leaf")

	weights := tree.LeafWeights()
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestBuildContentTreeIgnoresInactive(t *testing.T) {
	nodes := formationFixture()
	for i := range nodes {
		if nodes[i].ID == "q1" {
			nodes[i].Active = false
		}
	}
	tree, err := BuildContentTree("f1", nodes)
	require.NoError(t, err)
	assert.False(t, tree.IsLeaf("q1"))
	assert.InDelta(t, 1.0, tree.LeafWeights()["e1"], 1e-9)
}

func TestBuildContentTreeStructuralErrors(t *testing.T) {
	cases := []struct {
		name  string
		nodes []models.ContentNode
	}{
		{
			name: "missing parent",
			nodes: append(formationFixture(),
				models.ContentNode{ID: "x", FormationID: "f1", ParentID: strPtr("ghost"), Kind: models.NodeKindChapter, OrderIndex: 9, Active: true}),
		},
		{
			name: "multiple roots",
			nodes: append(formationFixture(),
				models.ContentNode{ID: "root2", FormationID: "f1", Kind: models.NodeKindFormation, OrderIndex: 9, Active: true}),
		},
		{
			name: "duplicate order index",
			nodes: append(formationFixture(),
				models.ContentNode{ID: "m3", FormationID: "f1", ParentID: strPtr("root"), Kind: models.NodeKindModule, OrderIndex: 1, Active: true}),
		},
		{
			name: "duplicate id",
			nodes: append(formationFixture(),
				models.ContentNode{ID: "m1", FormationID: "f1", ParentID: strPtr("root"), Kind: models.NodeKindModule, OrderIndex: 9, Active: true}),
		},
		{
			name: "cycle",
			nodes: append(formationFixture(),
				models.ContentNode{ID: "a", FormationID: "f1", ParentID: strPtr("b"), Kind: models.NodeKindChapter, OrderIndex: 8, Active: true},
				models.ContentNode{ID: "b", FormationID: "f1", ParentID: strPtr("a"), Kind: models.NodeKindChapter, OrderIndex: 9, Active: true}),
		},
		{
			name:  "no active nodes",
			nodes: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildContentTree("f1", tc.nodes)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrStructure.Code, appErrors.FromError(err).Code)
		})
	}
}

type contentNodeRepoStub struct {
	nodes []models.ContentNode
	calls int
}

func (s *contentNodeRepoStub) ListByFormation(ctx context.Context, formationID string) ([]models.ContentNode, error) {
	s.calls++
	return s.nodes, nil
}

func TestContentTreeServiceCachesAndRebuilds(t *testing.T) {
	repo := &contentNodeRepoStub{nodes: formationFixture()}
	svc := NewContentTreeService(repo, nil)

	_, err := svc.Tree(context.Background(), "f1")
	require.NoError(t, err)
	_, err = svc.Tree(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "second read should hit the cached tree")

	_, err = svc.Rebuild(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestContentTreeServiceRejectsBrokenRebuild(t *testing.T) {
	repo := &contentNodeRepoStub{nodes: formationFixture()}
	svc := NewContentTreeService(repo, nil)
	_, err := svc.Tree(context.Background(), "f1")
	require.NoError(t, err)

	repo.nodes = append(repo.nodes,
		models.ContentNode{ID: "broken", FormationID: "f1", ParentID: strPtr("ghost"), Kind: models.NodeKindChapter, OrderIndex: 9, Active: true})
	_, err = svc.Rebuild(context.Background(), "f1")
	require.Error(t, err)

	// the previous tree stays in place for readers
	tree, err := svc.Tree(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 100, tree.TotalDurationMinutes())
}
