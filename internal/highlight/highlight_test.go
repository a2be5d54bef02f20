package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/raintree-service/internal/tree"
)

const tavgTree = `{"feature":"tavg","threshold":25,
	"left":{"feature":"wspd","threshold":15,"left":{"label":1},"right":{"label":0}},
	"right":{"label":1}}`

func newController(t *testing.T) (*Controller, *tree.Tree) {
	t.Helper()
	root, err := tree.ParseJSON([]byte(tavgTree))
	require.NoError(t, err)
	tr, err := tree.Build(root)
	require.NoError(t, err)
	return NewController(tr), tr
}

func classify(t *testing.T, tr *tree.Tree, fv tree.FeatureVector) tree.Path {
	t.Helper()
	res, err := tree.Classify(tr, fv)
	require.NoError(t, err)
	return res.Path
}

func TestController_ApplyPath(t *testing.T) {
	c, tr := newController(t)
	path := classify(t, tr, tree.FeatureVector{"tavg": 20, "wspd": 10})

	diff, err := c.ApplyPath(path)
	require.NoError(t, err)

	assert.Equal(t, tr.Generation(), diff.Generation)
	assert.Equal(t, []tree.NodeID{1, 2, 3}, diff.NodesToActivate)
	assert.Equal(t, []tree.Edge{{From: 1, To: 2}, {From: 2, To: 3}}, diff.EdgesToActivate)
	assert.Empty(t, diff.NodesToDeactivate)
	assert.Empty(t, diff.EdgesToDeactivate)

	active := c.Active()
	assert.True(t, active.IsActive(2))
	assert.False(t, active.IsActive(5))
	assert.True(t, active.IsEdgeActive(2, 3))
	assert.False(t, active.IsEdgeActive(1, 5))
}

func TestController_HighlightIsolation(t *testing.T) {
	c, tr := newController(t)
	pathA := classify(t, tr, tree.FeatureVector{"tavg": 20, "wspd": 10})
	pathB := classify(t, tr, tree.FeatureVector{"tavg": 30})

	_, err := c.ApplyPath(pathA)
	require.NoError(t, err)
	diff, err := c.ApplyPath(pathB)
	require.NoError(t, err)

	assert.Equal(t, []tree.NodeID{1, 2, 3}, diff.NodesToDeactivate)
	assert.Equal(t, []tree.Edge{{From: 1, To: 2}, {From: 2, To: 3}}, diff.EdgesToDeactivate)
	assert.Equal(t, []tree.NodeID{1, 5}, diff.NodesToActivate)

	active := c.Active()
	assert.Equal(t, []tree.NodeID{1, 5}, active.Nodes)
	assert.Equal(t, []tree.Edge{{From: 1, To: 5}}, active.Edges)
	for _, id := range []tree.NodeID{2, 3, 4} {
		assert.False(t, active.IsActive(id), "node %d left over from previous path", id)
	}
}

func TestController_RepeatedPathIsNotAdditive(t *testing.T) {
	c, tr := newController(t)
	path := classify(t, tr, tree.FeatureVector{"tavg": 30})

	for i := 0; i < 3; i++ {
		_, err := c.ApplyPath(path)
		require.NoError(t, err)
	}
	assert.Len(t, c.Active().Nodes, 2)
	assert.Len(t, c.Active().Edges, 1)
}

func TestController_Clear(t *testing.T) {
	c, tr := newController(t)
	_, err := c.ApplyPath(classify(t, tr, tree.FeatureVector{"tavg": 30}))
	require.NoError(t, err)

	diff := c.Clear()
	assert.Equal(t, []tree.NodeID{1, 5}, diff.NodesToDeactivate)
	assert.Empty(t, diff.NodesToActivate)
	assert.Empty(t, c.Active().Nodes)

	assert.True(t, c.Clear().Empty(), "second clear is a no-op")

	diff, err = c.ApplyPath(tree.Path{Generation: tr.Generation()})
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestController_RejectsForeignGeneration(t *testing.T) {
	c, tr := newController(t)
	good := classify(t, tr, tree.FeatureVector{"tavg": 30})
	_, err := c.ApplyPath(good)
	require.NoError(t, err)

	reg := tree.NewRegistry()
	root, err := tree.ParseJSON([]byte(tavgTree))
	require.NoError(t, err)
	_, err = reg.Build(root)
	require.NoError(t, err)
	other, err := reg.Build(root)
	require.NoError(t, err)

	_, err = c.ApplyPath(classify(t, other, tree.FeatureVector{"tavg": 20, "wspd": 10}))
	require.ErrorIs(t, err, ErrForeignPath)
	assert.Equal(t, good.IDs, c.Active().Nodes, "failed apply leaves highlight untouched")
}

func TestController_RejectsInvalidPath(t *testing.T) {
	c, tr := newController(t)
	gen := tr.Generation()

	tests := []struct {
		name string
		ids  []tree.NodeID
	}{
		{"unknown id", []tree.NodeID{1, 9}},
		{"not starting at root", []tree.NodeID{2, 3}},
		{"skips a level", []tree.NodeID{1, 3}},
		{"continues past a leaf", []tree.NodeID{1, 5, 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.ApplyPath(tree.Path{Generation: gen, IDs: tc.ids})
			require.ErrorIs(t, err, ErrInvalidPath)
		})
	}

	_, err := NewController(nil).ApplyPath(tree.Path{})
	require.ErrorIs(t, err, ErrForeignPath)
}

func TestController_ActiveIsACopy(t *testing.T) {
	c, tr := newController(t)
	_, err := c.ApplyPath(classify(t, tr, tree.FeatureVector{"tavg": 30}))
	require.NoError(t, err)

	snap := c.Active()
	snap.Nodes[0] = 99
	assert.Equal(t, tree.NodeID(1), c.Active().Nodes[0])
}
