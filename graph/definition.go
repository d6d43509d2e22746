package graph

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plexusgraph/plexus/internal/logging"
	"github.com/plexusgraph/plexus/schema"
)

// Reserved architecture field names. Every record starts with these two
// regions; layer fields follow in declaration order.
const (
	FieldActivity  = "activity"
	FieldAdjacency = "adjacency"
)

// Config carries the constructor inputs for a Definition. When metadata for
// (Name, Dir) already exists on disk, NodeIDs and Layers are ignored and the
// persisted architecture wins.
type Config struct {
	// Name identifies the definition within Dir.
	Name string
	// Dir is the directory holding the metadata file.
	Dir string
	// NodeIDs is the ordered node identity set. Must be unique, non-empty
	// strings. Fixed forever at creation.
	NodeIDs []string
	// Layers declares the per-observation layer fields, in layout order.
	// Each must be a scalar field (empty shape).
	Layers []schema.Field
	// Logger receives notices and warnings. Nil discards them.
	Logger *slog.Logger
}

// Definition is the immutable architecture of a multiplex graph: the node
// identity set plus the record schema shared by every observation store
// opened against it.
type Definition struct {
	name    string
	dir     string
	nodeIDs []string
	sch     *schema.Schema
	log     *slog.Logger
}

// defDoc is the on-disk metadata document.
type defDoc struct {
	NodeID    []string       `yaml:"node_id"`
	NNode     int            `yaml:"n_node"`
	ArchDType *schema.Schema `yaml:"arch_dtype"`
}

// NewDefinition creates a definition or, when metadata already exists at the
// derived path, loads it. In the load case the supplied NodeIDs and Layers
// are ignored entirely and a notice is logged: the persisted schema is
// stable across process restarts. Calling NewDefinition twice for the same
// (Name, Dir) is therefore one create followed by one load, never an
// overwrite.
func NewDefinition(cfg Config) (*Definition, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	if err := validateName(cfg.Name); err != nil {
		return nil, err
	}

	path := DefinitionPath(cfg.Dir, cfg.Name)
	if _, err := os.Stat(path); err == nil {
		log.Info("definition metadata exists; ignoring supplied node ids and layers",
			"name", cfg.Name, "path", redactPath(path))
		return LoadDefinition(cfg.Dir, cfg.Name, cfg.Logger)
	}

	if cfg.NodeIDs == nil {
		return nil, fmt.Errorf("%w: node identifiers are required", ErrWrongType)
	}
	if len(cfg.NodeIDs) == 0 {
		return nil, fmt.Errorf("%w: node identifier set is empty", ErrBadValue)
	}
	seen := make(map[string]struct{}, len(cfg.NodeIDs))
	for i, id := range cfg.NodeIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: node identifier %d is empty", ErrBadValue, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate node identifier %q", ErrBadValue, id)
		}
		seen[id] = struct{}{}
	}

	sch, err := buildArchSchema(len(cfg.NodeIDs), cfg.Layers)
	if err != nil {
		return nil, err
	}

	d := &Definition{
		name:    cfg.Name,
		dir:     cfg.Dir,
		nodeIDs: append([]string(nil), cfg.NodeIDs...),
		sch:     sch,
		log:     log,
	}
	if err := d.persist(path); err != nil {
		return nil, err
	}
	log.Debug("definition created", "name", cfg.Name, "n_node", len(d.nodeIDs),
		"record_size", sch.RecordSize())
	return d, nil
}

// buildArchSchema assembles the full record schema: activity and adjacency
// over n nodes, then the declared layer fields in order.
func buildArchSchema(n int, layers []schema.Field) (*schema.Schema, error) {
	fields := make([]schema.Field, 0, len(layers)+2)
	fields = append(fields,
		schema.Field{Name: FieldActivity, Kind: schema.Float64, Shape: []int{n}},
		schema.Field{Name: FieldAdjacency, Kind: schema.Float64, Shape: []int{n, n}},
	)
	for _, l := range layers {
		if l.Name == FieldActivity || l.Name == FieldAdjacency {
			return nil, fmt.Errorf("%w: layer name %q is reserved", ErrWrongType, l.Name)
		}
		if len(l.Shape) != 0 {
			return nil, fmt.Errorf("%w: layer %q must be a scalar field", ErrWrongType, l.Name)
		}
		fields = append(fields, l)
	}
	sch, err := schema.New(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: layer specification: %w", ErrWrongType, err)
	}
	return sch, nil
}

// persist writes the metadata document atomically (temp file + rename).
func (d *Definition) persist(path string) error {
	doc := defDoc{NodeID: d.nodeIDs, NNode: len(d.nodeIDs), ArchDType: d.sch}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", ErrStorage, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, redactPath(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %v", ErrStorage, redactPath(path), err)
	}
	return nil
}

// LoadDefinition loads previously persisted metadata for (dir, name).
// Missing metadata is ErrMissing; metadata whose schema does not describe a
// valid architecture is ErrWrongType.
func LoadDefinition(dir, name string, logger *slog.Logger) (*Definition, error) {
	log := logger
	if log == nil {
		log = logging.Discard()
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	path := DefinitionPath(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: definition %q in %s", ErrMissing, name, redactPath(dir))
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, redactPath(path), err)
	}
	var doc defDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrWrongType, redactPath(path), err)
	}
	if err := checkArchDoc(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWrongType, redactPath(path), err)
	}
	d := &Definition{
		name:    name,
		dir:     dir,
		nodeIDs: doc.NodeID,
		sch:     doc.ArchDType,
		log:     log,
	}
	log.Debug("definition loaded", "name", name, "n_node", doc.NNode)
	return d, nil
}

// checkArchDoc validates a decoded metadata document: node count agreement
// and the reserved activity/adjacency regions shaped over the node set.
func checkArchDoc(doc defDoc) error {
	if doc.ArchDType == nil {
		return fmt.Errorf("missing arch_dtype")
	}
	n := len(doc.NodeID)
	if n == 0 {
		return fmt.Errorf("empty node_id list")
	}
	if doc.NNode != n {
		return fmt.Errorf("n_node %d disagrees with %d node ids", doc.NNode, n)
	}
	act, ok := doc.ArchDType.Field(FieldActivity)
	if !ok || act.Kind != schema.Float64 || len(act.Shape) != 1 || act.Shape[0] != n {
		return fmt.Errorf("activity field missing or misshaped")
	}
	adj, ok := doc.ArchDType.Field(FieldAdjacency)
	if !ok || adj.Kind != schema.Float64 || len(adj.Shape) != 2 ||
		adj.Shape[0] != n || adj.Shape[1] != n {
		return fmt.Errorf("adjacency field missing or misshaped")
	}
	return nil
}

// Name returns the definition name.
func (d *Definition) Name() string { return d.name }

// Dir returns the directory the definition persists under.
func (d *Definition) Dir() string { return d.dir }

// NNode returns the node count.
func (d *Definition) NNode() int { return len(d.nodeIDs) }

// NodeIDs returns a copy of the ordered node identity set.
func (d *Definition) NodeIDs() []string {
	return append([]string(nil), d.nodeIDs...)
}

// Schema returns the record schema. The schema is immutable.
func (d *Definition) Schema() *schema.Schema { return d.sch }

// LayerFields returns the declared layer fields, excluding the reserved
// activity and adjacency regions.
func (d *Definition) LayerFields() []schema.Field {
	var out []schema.Field
	for _, f := range d.sch.Fields() {
		if f.Name == FieldActivity || f.Name == FieldAdjacency {
			continue
		}
		out = append(out, f)
	}
	return out
}

// MetadataPath returns the path of the persisted metadata file.
func (d *Definition) MetadataPath() string {
	return DefinitionPath(d.dir, d.name)
}

// Describe renders a human-readable architecture summary.
//
// TODO: render node ids, layer dtypes and record layout as a table.
func (d *Definition) Describe() (string, error) {
	return "", fmt.Errorf("%w: architecture summary", ErrNotImplemented)
}
