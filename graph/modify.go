package graph

import (
	"fmt"
	"sort"

	"github.com/plexusgraph/plexus/schema"
)

// ModifyRequest carries the inputs of one Modify call. Any subset of the
// data fields may be supplied; fields not supplied are left untouched at
// the target observations.
//
// The array arguments are dynamically shaped with a closed accepted set:
//
//	Activity:  []float64 (one observation) or [][]float64 (one row per
//	           observation; a (n_node, n_obs) matrix is transposed once
//	           before failing)
//	Adjacency: [][]float64 (a single square matrix, broadcast to one
//	           observation) or [][][]float64 (one matrix per observation)
//	Layers:    layer name -> column slice, cast to the declared element
//	           kind (see schema.CastColumn)
//
// Anything else fails with ErrWrongType.
type ModifyRequest struct {
	// Indices are the target observation indices. Nil means append: a
	// contiguous run starting at the current length, sized by the supplied
	// multi-observation arrays. An empty non-nil slice is invalid.
	Indices []int
	// Activity holds per-node activity rows.
	Activity any
	// Adjacency holds node-pair weight matrices.
	Adjacency any
	// Layers holds one column per declared layer field. Unknown names are
	// skipped with a warning rather than failing the call.
	Layers map[string]any
}

// FieldStatus classifies the outcome of one supplied field.
type FieldStatus string

const (
	// FieldApplied means the field was validated and written.
	FieldApplied FieldStatus = "applied"
	// FieldSkipped means the field was dropped; Reason says why.
	FieldSkipped FieldStatus = "skipped"
)

// FieldResult reports the outcome of one supplied field of a Modify call.
// A call is not all-or-nothing: unknown layer names are skipped while the
// known fields still apply.
type FieldResult struct {
	Field  string
	Status FieldStatus
	Reason string
}

// Modify writes the supplied fields at the target observations.
//
// The call proceeds in five steps: index inference, shape normalization and
// casting, capacity growth, the write itself, and per-field reporting. All
// validation completes before any byte is written, so a failed call leaves
// the store unmodified. On success the mapping has been flushed and
// reopened read-only, the transient mark is cleared, and the per-field
// outcomes are returned (and traced when debug logging is enabled).
func (s *Store) Modify(req ModifyRequest) ([]FieldResult, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", ErrStorage)
	}
	nNode := s.def.NNode()

	act, actImplied, transposed, err := normalizeActivity(req.Activity, nNode)
	if err != nil {
		return nil, err
	}
	if transposed {
		s.log.Debug("activity matrix was transposed to (n_obs, n_node)",
			"store", s.name)
	}
	adj, adjImplied, err := normalizeAdjacency(req.Adjacency, nNode)
	if err != nil {
		return nil, err
	}

	idx, err := s.resolveIndices(req.Indices, actImplied, adjImplied)
	if err != nil {
		return nil, err
	}
	nObs := len(idx)

	if act != nil && len(act) != nObs {
		return nil, fmt.Errorf("%w: activity holds %d observations, indices address %d",
			ErrBadValue, len(act), nObs)
	}
	if adj != nil && len(adj) != nObs {
		return nil, fmt.Errorf("%w: adjacency holds %d observations, indices address %d",
			ErrBadValue, len(adj), nObs)
	}

	cols, results, err := s.castLayers(req.Layers, nObs)
	if err != nil {
		return nil, err
	}

	// Everything is validated; from here on the file changes.
	if err := s.file.Remap(true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	rs := s.def.Schema().RecordSize()
	maxIx := idx[0]
	for _, ix := range idx {
		if ix > maxIx {
			maxIx = ix
		}
	}
	if maxIx >= s.Len() {
		if err := s.file.Grow(int64(maxIx+1) * int64(rs)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	sch := s.def.Schema()
	buf := s.file.Bytes()
	for k, ix := range idx {
		rec := buf[ix*rs : (ix+1)*rs]
		if act != nil {
			if err := sch.PutFloat64s(rec, FieldActivity, act[k]); err != nil {
				s.file.Remap(false)
				return nil, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
		if adj != nil {
			flat := make([]float64, nNode*nNode)
			for r, row := range adj[k] {
				copy(flat[r*nNode:], row)
			}
			if err := sch.PutFloat64s(rec, FieldAdjacency, flat); err != nil {
				s.file.Remap(false)
				return nil, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
		for _, c := range cols {
			if err := sch.PutRaw(rec, c.Field().Name, c.Row(k)); err != nil {
				s.file.Remap(false)
				return nil, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
	}

	if err := s.file.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.file.Remap(false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.transient = false

	if act != nil {
		results = append(results, FieldResult{Field: FieldActivity, Status: FieldApplied})
	}
	if adj != nil {
		results = append(results, FieldResult{Field: FieldAdjacency, Status: FieldApplied})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Field < results[j].Field })

	s.logOutcome(idx, results)
	return results, nil
}

// resolveIndices squeezes explicit indices or infers an append run. Only
// arrays that arrived with more than one dimension imply a count; a single
// activity row implies nothing, a single adjacency matrix implies one
// observation (it was broadcast from two dimensions).
func (s *Store) resolveIndices(indices []int, actImplied, adjImplied int) ([]int, error) {
	if indices != nil {
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: empty index list", ErrBadValue)
		}
		idx := append([]int(nil), indices...)
		seen := make(map[int]struct{}, len(idx))
		for _, ix := range idx {
			if ix < 0 {
				return nil, fmt.Errorf("%w: %d", ErrIndexRange, ix)
			}
			if _, dup := seen[ix]; dup {
				return nil, fmt.Errorf("%w: duplicate index %d", ErrBadValue, ix)
			}
			seen[ix] = struct{}{}
		}
		return idx, nil
	}

	count := actImplied
	if adjImplied > count {
		count = adjImplied
	}
	if count < 1 {
		return nil, ErrAmbiguousAppend
	}
	start := s.Len()
	idx := make([]int, count)
	for i := range idx {
		idx[i] = start + i
	}
	return idx, nil
}

// normalizeActivity resolves the activity argument to one row per
// observation. implied is the observation count the argument implies for
// append inference, or -1 when it implies none.
func normalizeActivity(v any, nNode int) (rows [][]float64, implied int, transposed bool, err error) {
	switch a := v.(type) {
	case nil:
		return nil, -1, false, nil
	case []float64:
		if len(a) != nNode {
			return nil, 0, false, fmt.Errorf("%w: activity row has %d values over %d nodes",
				ErrBadValue, len(a), nNode)
		}
		return [][]float64{a}, -1, false, nil
	case [][]float64:
		if len(a) == 0 {
			return nil, 0, false, fmt.Errorf("%w: empty activity matrix", ErrBadValue)
		}
		cols := len(a[0])
		for _, row := range a {
			if len(row) != cols {
				return nil, 0, false, fmt.Errorf("%w: ragged activity matrix", ErrBadValue)
			}
		}
		// Row-major (n_obs, n_node) wins; the transpose is attempted once.
		// When the matrix is square the two readings coincide in shape and
		// the row-major one is taken, which can silently misread transposed
		// input. Documented hazard.
		if cols == nNode {
			return a, len(a), false, nil
		}
		if len(a) == nNode {
			t := make([][]float64, cols)
			for i := range t {
				t[i] = make([]float64, nNode)
				for j := 0; j < nNode; j++ {
					t[i][j] = a[j][i]
				}
			}
			return t, cols, true, nil
		}
		return nil, 0, false, fmt.Errorf("%w: activity shape (%d, %d) does not fit %d nodes",
			ErrBadValue, len(a), cols, nNode)
	default:
		return nil, 0, false, fmt.Errorf("%w: activity must be []float64 or [][]float64, got %T",
			ErrWrongType, v)
	}
}

// normalizeAdjacency resolves the adjacency argument to one square matrix
// per observation.
func normalizeAdjacency(v any, nNode int) (mats [][][]float64, implied int, err error) {
	check := func(m [][]float64) error {
		if len(m) != nNode {
			return fmt.Errorf("%w: %d rows over %d nodes", ErrNonSquareAdjacency, len(m), nNode)
		}
		for _, row := range m {
			if len(row) != nNode {
				return fmt.Errorf("%w: row of %d over %d nodes", ErrNonSquareAdjacency, len(row), nNode)
			}
		}
		return nil
	}
	switch a := v.(type) {
	case nil:
		return nil, -1, nil
	case [][]float64:
		if err := check(a); err != nil {
			return nil, 0, err
		}
		return [][][]float64{a}, 1, nil
	case [][][]float64:
		if len(a) == 0 {
			return nil, 0, fmt.Errorf("%w: empty adjacency stack", ErrBadValue)
		}
		for _, m := range a {
			if err := check(m); err != nil {
				return nil, 0, err
			}
		}
		return a, len(a), nil
	default:
		return nil, 0, fmt.Errorf("%w: adjacency must be [][]float64 or [][][]float64, got %T",
			ErrWrongType, v)
	}
}

// castLayers casts the supplied layer columns against their declared
// fields. Unknown names are a soft failure: logged, reported as skipped,
// and dropped. A known name whose values cannot be cast fails the call.
func (s *Store) castLayers(layers map[string]any, nObs int) ([]schema.Column, []FieldResult, error) {
	if len(layers) == 0 {
		return nil, nil, nil
	}
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		cols    []schema.Column
		results []FieldResult
	)
	for _, name := range names {
		field, ok := s.def.Schema().Field(name)
		if !ok || name == FieldActivity || name == FieldAdjacency {
			s.log.Warn("dropping unknown layer field", "store", s.name, "layer", name)
			results = append(results, FieldResult{
				Field:  name,
				Status: FieldSkipped,
				Reason: "unknown layer field",
			})
			continue
		}
		col, err := schema.CastColumn(field, layers[name], nObs)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: layer %q: %v", ErrWrongType, name, err)
		}
		cols = append(cols, col)
		results = append(results, FieldResult{Field: name, Status: FieldApplied})
	}
	return cols, results, nil
}

// logOutcome records the per-field outcomes of a successful call, both on
// the operational logger and, when enabled, the JSONL write trace.
func (s *Store) logOutcome(idx []int, results []FieldResult) {
	fields := make([]map[string]any, len(results))
	for i, r := range results {
		fields[i] = map[string]any{"field": r.Field, "status": string(r.Status)}
		if r.Reason != "" {
			fields[i]["reason"] = r.Reason
		}
	}
	s.log.Debug("store modified", "store", s.name, "indices", idx,
		"observations", s.Len())
	s.trace.Log(map[string]any{
		"op":      "modify",
		"store":   s.name,
		"indices": idx,
		"length":  s.Len(),
		"fields":  fields,
	})
}
