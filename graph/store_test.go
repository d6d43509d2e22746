package graph

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusgraph/plexus/internal/logging"
	"github.com/plexusgraph/plexus/schema"
)

// testStore builds a three-node definition with a float64 "time" layer and
// opens an empty store against it.
func testStore(t *testing.T) (*Store, *Definition, string) {
	t.Helper()
	dir := t.TempDir()
	def, err := NewDefinition(Config{
		Name:    "ecog",
		Dir:     dir,
		NodeIDs: []string{"A", "B", "C"},
		Layers:  []schema.Field{{Name: "time", Kind: schema.Float64}},
	})
	require.NoError(t, err)

	s, err := OpenStore(def, "run01", dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, def, dir
}

func TestOpenStore_NewIsTransientAndEmpty(t *testing.T) {
	s, _, _ := testStore(t)

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Transient())

	_, err := os.Stat(s.Path())
	assert.NoError(t, err, "placeholder file exists while the store is open")
}

func TestStore_CloseRemovesNeverWritten(t *testing.T) {
	s, _, _ := testStore(t)
	path := s.Path()

	require.NoError(t, s.Close())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "transient store must leave no file")
}

func TestStore_CloseKeepsWritten(t *testing.T) {
	s, _, _ := testStore(t)
	path := s.Path()

	_, err := s.Modify(ModifyRequest{Activity: [][]float64{{1, 2, 3}}})
	require.NoError(t, err)
	assert.False(t, s.Transient())

	require.NoError(t, s.Close())
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "written store keeps its file")
}

func TestStore_ModifyAppendsInferredCount(t *testing.T) {
	s, _, _ := testStore(t)

	res, err := s.Modify(ModifyRequest{Activity: [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	require.Len(t, res, 1)
	assert.Equal(t, FieldApplied, res[0].Status)

	got, err := s.Activity(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, got)

	// A further append continues at the current length.
	_, err = s.Modify(ModifyRequest{Activity: [][]float64{{7, 8, 9}}})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
}

func TestStore_ModifySingleAdjacencyBroadcast(t *testing.T) {
	s, _, _ := testStore(t)

	mat := [][]float64{
		{0, 1, 0},
		{1, 0, 1},
		{0, 1, 0},
	}
	_, err := s.Modify(ModifyRequest{Adjacency: mat})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len(), "single matrix is exactly one observation")

	got, err := s.Adjacency(0)
	require.NoError(t, err)
	assert.Equal(t, mat, got)
}

func TestStore_ModifyAmbiguousAppend(t *testing.T) {
	s, _, _ := testStore(t)

	// Only a one-dimensional layer column: nothing implies a count.
	_, err := s.Modify(ModifyRequest{Layers: map[string]any{"time": []float64{0.5}}})
	assert.ErrorIs(t, err, ErrAmbiguousAppend)
	assert.ErrorIs(t, err, ErrBadValue)
	assert.Equal(t, 0, s.Len())

	// A single activity row implies nothing either.
	_, err = s.Modify(ModifyRequest{Activity: []float64{1, 2, 3}})
	assert.ErrorIs(t, err, ErrAmbiguousAppend)
}

func TestStore_ModifyTransposedActivity(t *testing.T) {
	dir := t.TempDir()
	def, err := NewDefinition(Config{
		Name:    "wide",
		Dir:     dir,
		NodeIDs: []string{"A", "B", "C"},
	})
	require.NoError(t, err)
	s, err := OpenStore(def, "run01", dir, nil)
	require.NoError(t, err)
	defer s.Close()

	// (n_node, n_obs) = (3, 2): accepted via one transpose.
	_, err = s.Modify(ModifyRequest{Activity: [][]float64{
		{1, 4},
		{2, 5},
		{3, 6},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	got, err := s.Activity(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
	got, err = s.Activity(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, got)
}

func TestStore_ModifyShapeErrors(t *testing.T) {
	s, _, _ := testStore(t)

	t.Run("activity fits neither orientation", func(t *testing.T) {
		_, err := s.Modify(ModifyRequest{Activity: [][]float64{{1, 2}}})
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("ragged activity", func(t *testing.T) {
		_, err := s.Modify(ModifyRequest{Activity: [][]float64{{1, 2, 3}, {1}}})
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("non-square adjacency", func(t *testing.T) {
		_, err := s.Modify(ModifyRequest{Adjacency: [][]float64{{1, 2}, {3, 4}}})
		assert.ErrorIs(t, err, ErrNonSquareAdjacency)
	})

	t.Run("wrong argument type", func(t *testing.T) {
		_, err := s.Modify(ModifyRequest{Activity: "not an array"})
		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("negative index", func(t *testing.T) {
		_, err := s.Modify(ModifyRequest{
			Indices:  []int{-1},
			Activity: []float64{1, 2, 3},
		})
		assert.ErrorIs(t, err, ErrIndexRange)
	})

	t.Run("count mismatch with indices", func(t *testing.T) {
		_, err := s.Modify(ModifyRequest{
			Indices:  []int{0, 1},
			Activity: [][]float64{{1, 2, 3}},
		})
		assert.ErrorIs(t, err, ErrBadValue)
	})
}

func TestStore_ModifyLayerCastFailureLeavesStoreUntouched(t *testing.T) {
	s, _, _ := testStore(t)

	_, err := s.Modify(ModifyRequest{
		Activity: [][]float64{{1, 2, 3}},
		Layers:   map[string]any{"time": []string{"not a float"}},
	})
	assert.ErrorIs(t, err, ErrWrongType)
	assert.Equal(t, 0, s.Len(), "failed call must not write")
	assert.True(t, s.Transient())
}

func TestStore_ModifyUnknownLayerIsSoftSkipped(t *testing.T) {
	s, _, _ := testStore(t)

	res, err := s.Modify(ModifyRequest{
		Activity: [][]float64{{1, 2, 3}},
		Layers:   map[string]any{"bogus": []float64{1}},
	})
	require.NoError(t, err, "unknown layer names are dropped, not fatal")
	require.Equal(t, 1, s.Len(), "valid activity still applies")

	var skipped, applied []string
	for _, r := range res {
		switch r.Status {
		case FieldSkipped:
			skipped = append(skipped, r.Field)
		case FieldApplied:
			applied = append(applied, r.Field)
		}
	}
	assert.Equal(t, []string{"bogus"}, skipped)
	assert.Equal(t, []string{FieldActivity}, applied)
}

func TestStore_PartialFieldUpdate(t *testing.T) {
	s, _, _ := testStore(t)

	adj := [][]float64{
		{0, 1, 0},
		{1, 0, 1},
		{0, 1, 0},
	}
	_, err := s.Modify(ModifyRequest{
		Activity:  [][]float64{{1, 2, 3}},
		Adjacency: adj,
		Layers:    map[string]any{"time": []float64{0.5}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	// Overwrite only activity at index 0.
	_, err = s.Modify(ModifyRequest{
		Indices:  []int{0},
		Activity: [][]float64{{9, 9, 9}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	obs, err := s.Observation(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 9, 9}, obs.Activity)
	assert.Equal(t, adj, obs.Adjacency)
	assert.Equal(t, 0.5, obs.Layers["time"])
}

func TestStore_SparseIndexGrowsAndZeroFills(t *testing.T) {
	s, _, _ := testStore(t)

	_, err := s.Modify(ModifyRequest{
		Indices:  []int{2},
		Activity: []float64{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len(), "writing index 2 grows the store to length 3")

	gap, err := s.Activity(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, gap, "unwritten records are zero")
}

func TestStore_ReopenSeesPersistedData(t *testing.T) {
	s, def, dir := testStore(t)

	_, err := s.Modify(ModifyRequest{
		Activity: [][]float64{{1, 2, 3}},
		Layers:   map[string]any{"time": []float64{7.5}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	again, err := OpenStore(def, "run01", dir, nil)
	require.NoError(t, err)
	defer again.Close()

	assert.False(t, again.Transient(), "existing data file is not transient")
	require.Equal(t, 1, again.Len())

	act, err := again.Activity(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, act)

	tv, err := again.Layer(0, "time")
	require.NoError(t, err)
	assert.Equal(t, 7.5, tv)
}

func TestStore_Readers(t *testing.T) {
	s, _, _ := testStore(t)
	_, err := s.Modify(ModifyRequest{Activity: [][]float64{{1, 2, 3}}})
	require.NoError(t, err)

	_, err = s.Activity(5)
	assert.ErrorIs(t, err, ErrIndexRange)

	_, err = s.Layer(0, "bogus")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = s.Layer(0, FieldActivity)
	assert.ErrorIs(t, err, ErrUnknownField, "activity is not addressable as a layer")
}

func TestOpenStore_RejectsMisfitFile(t *testing.T) {
	_, def, dir := testStore(t)

	// A file whose length is not a record multiple cannot belong to this
	// schema.
	path := StorePath(dir, "broken")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := OpenStore(def, "broken", dir, nil)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestOpenStore_NilDefinition(t *testing.T) {
	_, err := OpenStore(nil, "x", t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestStore_ModifyAfterClose(t *testing.T) {
	s, _, _ := testStore(t)
	require.NoError(t, s.Close())

	_, err := s.Modify(ModifyRequest{Activity: [][]float64{{1, 2, 3}}})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestStore_DebugLoggingWritesTrace(t *testing.T) {
	dir := t.TempDir()
	def, err := NewDefinition(Config{
		Name:    "traced",
		Dir:     dir,
		NodeIDs: []string{"A", "B"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	log := logging.NewLogger("debug", &buf)
	s, err := OpenStore(def, "run01", dir, log)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Modify(ModifyRequest{Activity: [][]float64{{1, 2}}})
	require.NoError(t, err)

	tracePath := filepath.Join(dir, "plexus.graph.Store.Dat.run01.dat.trace.jsonl")
	data, readErr := os.ReadFile(tracePath)
	require.NoError(t, readErr, "debug level opens a JSONL write trace")
	assert.Contains(t, string(data), `"op":"modify"`)
	assert.Contains(t, buf.String(), "store modified")
}
