package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/plexusgraph/plexus/internal/logging"
	"github.com/plexusgraph/plexus/internal/mmapfile"
)

// Store is a growable, memory-mapped sequence of observation records
// conforming to a Definition's schema, one record per observation,
// addressed by a zero-based index. The sequence grows monotonically and
// never reorders; individual fields of individual observations may be
// overwritten in place via Modify.
//
// A Store assumes single-writer, single-process access. Modify remaps the
// file writable, optionally grows it, writes, flushes and remaps read-only
// as sequential unguarded steps; concurrent writers would corrupt the
// length and shape invariants, and readers may observe a partially written
// file during a write.
type Store struct {
	def       *Definition
	name      string
	dir       string
	file      *mmapfile.File
	transient bool
	closed    bool
	log       *slog.Logger
	trace     *logging.TraceLogger
}

// Observation is one fully decoded record.
type Observation struct {
	Activity  []float64
	Adjacency [][]float64
	Layers    map[string]any
}

// OpenStore opens the observation store named name under dir against def's
// schema. An existing data file is mapped read-only and must be an exact
// multiple of the record size. An absent file is created zero-length and
// the store is marked transient: if it is closed without ever being
// written, the file is removed again.
//
// When logger has debug enabled, per-call field outcomes are additionally
// appended to a JSONL trace file next to the data file.
func OpenStore(def *Definition, name, dir string, logger *slog.Logger) (*Store, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrWrongType)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	log := logger
	if log == nil {
		log = logging.Discard()
	}

	path := StorePath(dir, name)
	var (
		file      *mmapfile.File
		transient bool
		err       error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		file, err = mmapfile.Open(path)
	} else if os.IsNotExist(statErr) {
		file, err = mmapfile.Create(path)
		transient = true
	} else {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrStorage, redactPath(path), statErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, redactPath(path), err)
	}

	rs := int64(def.Schema().RecordSize())
	if file.Len()%rs != 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s holds %d bytes, record size is %d",
			ErrCorrupt, redactPath(path), file.Len(), rs)
	}

	var trace *logging.TraceLogger
	if log.Enabled(context.Background(), slog.LevelDebug) {
		trace = logging.NewTraceLogger(path + ".trace.jsonl")
	}

	s := &Store{
		def:       def,
		name:      name,
		dir:       dir,
		file:      file,
		transient: transient,
		log:       log,
		trace:     trace,
	}
	log.Debug("store opened", "name", name, "path", redactPath(path),
		"observations", s.Len(), "transient", transient)
	return s, nil
}

// Len returns the current observation count.
func (s *Store) Len() int {
	rs := s.def.Schema().RecordSize()
	return int(s.file.Len() / int64(rs))
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Path returns the backing data file path.
func (s *Store) Path() string { return s.file.Path() }

// Transient reports whether the store has never been successfully written.
func (s *Store) Transient() bool { return s.transient }

// record returns the raw bytes of observation i from the current mapping.
func (s *Store) record(i int) ([]byte, error) {
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexRange, i, s.Len())
	}
	rs := s.def.Schema().RecordSize()
	return s.file.Bytes()[i*rs : (i+1)*rs], nil
}

// Activity returns the per-node activity vector of observation i.
func (s *Store) Activity(i int) ([]float64, error) {
	rec, err := s.record(i)
	if err != nil {
		return nil, err
	}
	return s.def.Schema().Float64s(rec, FieldActivity)
}

// Adjacency returns the node-pair adjacency matrix of observation i as
// n_node rows of n_node weights.
func (s *Store) Adjacency(i int) ([][]float64, error) {
	rec, err := s.record(i)
	if err != nil {
		return nil, err
	}
	flat, err := s.def.Schema().Float64s(rec, FieldAdjacency)
	if err != nil {
		return nil, err
	}
	n := s.def.NNode()
	out := make([][]float64, n)
	for r := 0; r < n; r++ {
		out[r] = flat[r*n : (r+1)*n]
	}
	return out, nil
}

// Layer returns the value of the named layer field at observation i. The
// concrete type follows the declared element kind.
func (s *Store) Layer(i int, name string) (any, error) {
	if name == FieldActivity || name == FieldAdjacency {
		return nil, fmt.Errorf("%w: %q is not a layer field", ErrUnknownField, name)
	}
	if _, ok := s.def.Schema().Field(name); !ok {
		return nil, fmt.Errorf("%w: layer %q", ErrUnknownField, name)
	}
	rec, err := s.record(i)
	if err != nil {
		return nil, err
	}
	return s.def.Schema().Value(rec, name)
}

// Observation decodes the full record at index i.
func (s *Store) Observation(i int) (Observation, error) {
	act, err := s.Activity(i)
	if err != nil {
		return Observation{}, err
	}
	adj, err := s.Adjacency(i)
	if err != nil {
		return Observation{}, err
	}
	obs := Observation{Activity: act, Adjacency: adj, Layers: make(map[string]any)}
	for _, f := range s.def.LayerFields() {
		v, err := s.Layer(i, f.Name)
		if err != nil {
			return Observation{}, err
		}
		obs.Layers[f.Name] = v
	}
	return obs, nil
}

// Close releases the mapping. A store that was never written (still
// transient) also removes its backing file; removal failures are swallowed,
// cleanup is best effort. A store written at least once always keeps its
// file. Close is idempotent.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.trace.Close()
	if s.transient {
		// Best-effort cleanup of the empty placeholder; the mapping must be
		// released before the file can go.
		if err := s.file.Remove(); err != nil {
			s.log.Debug("transient store cleanup failed", "path", redactPath(s.Path()), "err", err)
		}
		return nil
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrStorage, redactPath(s.Path()), err)
	}
	return nil
}
