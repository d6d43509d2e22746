package graph

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusgraph/plexus/schema"
)

func testConfig(dir string) Config {
	return Config{
		Name:    "ecog",
		Dir:     dir,
		NodeIDs: []string{"A", "B", "C"},
		Layers: []schema.Field{
			{Name: "time", Kind: schema.Float64},
			{Name: "state", Kind: schema.String, Width: 8},
		},
	}
}

func TestNewDefinition_CreateThenLoad(t *testing.T) {
	dir := t.TempDir()

	d, err := NewDefinition(testConfig(dir))
	require.NoError(t, err)

	assert.Equal(t, 3, d.NNode())
	assert.Equal(t, []string{"A", "B", "C"}, d.NodeIDs())

	_, err = os.Stat(d.MetadataPath())
	require.NoError(t, err, "metadata file should exist")

	loaded, err := LoadDefinition(dir, "ecog", nil)
	require.NoError(t, err)
	assert.Equal(t, d.NodeIDs(), loaded.NodeIDs())
	assert.True(t, d.Schema().Equal(loaded.Schema()), "round-tripped schema differs")
}

func TestNewDefinition_IdempotentRecreate(t *testing.T) {
	dir := t.TempDir()

	first, err := NewDefinition(testConfig(dir))
	require.NoError(t, err)

	before, err := os.ReadFile(first.MetadataPath())
	require.NoError(t, err)

	// A second create with different inputs is a load; the supplied node
	// ids and layers are ignored and the persisted schema wins.
	again, err := NewDefinition(Config{
		Name:    "ecog",
		Dir:     dir,
		NodeIDs: []string{"X"},
		Layers:  []schema.Field{{Name: "other", Kind: schema.Int64}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, again.NodeIDs())
	assert.True(t, first.Schema().Equal(again.Schema()))

	after, err := os.ReadFile(first.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, before, after, "metadata must not be rewritten")
}

func TestNewDefinition_InvalidInputs(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing node ids", func(t *testing.T) {
		_, err := NewDefinition(Config{Name: "x", Dir: dir})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("empty node ids", func(t *testing.T) {
		_, err := NewDefinition(Config{Name: "x", Dir: dir, NodeIDs: []string{}})
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("duplicate node ids", func(t *testing.T) {
		_, err := NewDefinition(Config{Name: "x", Dir: dir, NodeIDs: []string{"A", "A"}})
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("empty node id", func(t *testing.T) {
		_, err := NewDefinition(Config{Name: "x", Dir: dir, NodeIDs: []string{"A", ""}})
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("reserved layer name", func(t *testing.T) {
		_, err := NewDefinition(Config{
			Name: "x", Dir: dir, NodeIDs: []string{"A"},
			Layers: []schema.Field{{Name: FieldActivity, Kind: schema.Float64}},
		})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("non-scalar layer", func(t *testing.T) {
		_, err := NewDefinition(Config{
			Name: "x", Dir: dir, NodeIDs: []string{"A"},
			Layers: []schema.Field{{Name: "vec", Kind: schema.Float64, Shape: []int{2}}},
		})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("bad layer dtype", func(t *testing.T) {
		_, err := NewDefinition(Config{
			Name: "x", Dir: dir, NodeIDs: []string{"A"},
			Layers: []schema.Field{{Name: "s", Kind: schema.String}},
		})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("bad name", func(t *testing.T) {
		_, err := NewDefinition(Config{Name: "a/b", Dir: dir, NodeIDs: []string{"A"}})
		assert.ErrorIs(t, err, ErrBadValue)
	})
}

func TestLoadDefinition_Missing(t *testing.T) {
	_, err := LoadDefinition(t.TempDir(), "nope", nil)
	assert.ErrorIs(t, err, ErrMissing)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestLoadDefinition_RejectsMangledMetadata(t *testing.T) {
	dir := t.TempDir()
	path := DefinitionPath(dir, "bad")

	// n_node disagrees with the id list.
	doc := "node_id: [A, B]\nn_node: 5\narch_dtype:\n- name: activity\n  dtype: float64\n  shape: [2]\n- name: adjacency\n  dtype: float64\n  shape: [2, 2]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := LoadDefinition(dir, "bad", nil)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDefinition_LayerFields(t *testing.T) {
	d, err := NewDefinition(testConfig(t.TempDir()))
	require.NoError(t, err)

	var names []string
	for _, f := range d.LayerFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"time", "state"}, names)
}

func TestDefinition_DescribeUnfinished(t *testing.T) {
	d, err := NewDefinition(testConfig(t.TempDir()))
	require.NoError(t, err)

	_, err = d.Describe()
	assert.ErrorIs(t, err, ErrNotImplemented)
}
