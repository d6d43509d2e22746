package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeTable is a write-once table of per-node attributes: the reserved
// node_id column plus one typed column per declared attribute. It
// round-trips exactly through SaveNodeTable and LoadNodeTable and refuses
// to overwrite an existing file.
type NodeTable struct {
	// IDs is the ordered node identity column.
	IDs []string
	// Columns are the attribute columns, in declaration order. Every column
	// must hold exactly len(IDs) values.
	Columns []NodeColumn
}

// NodeColumn is one typed attribute column. Values must be one of
// []float64, []int64, []string or []bool.
type NodeColumn struct {
	Name   string
	Values any
}

// nodeTableVersion is the current table document version; unknown versions
// are rejected on load.
const nodeTableVersion = 1

type nodeTableDoc struct {
	Version int          `yaml:"version"`
	NodeID  []string     `yaml:"node_id"`
	Attrs   []nodeColDoc `yaml:"attrs"`
}

type nodeColDoc struct {
	Name   string    `yaml:"name"`
	DType  string    `yaml:"dtype"`
	Values yaml.Node `yaml:"values"`
}

// SaveNodeTable persists table under dir at the deterministic path for
// name. The path must not exist yet; write-once.
func SaveNodeTable(dir, name string, table NodeTable) error {
	if err := validateName(name); err != nil {
		return err
	}
	if len(table.IDs) == 0 {
		return fmt.Errorf("%w: node table has no node ids", ErrBadValue)
	}
	doc := nodeTableDoc{Version: nodeTableVersion, NodeID: table.IDs}
	seen := map[string]struct{}{"node_id": {}}
	for _, col := range table.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: attribute column without a name", ErrBadValue)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("%w: duplicate attribute column %q", ErrBadValue, col.Name)
		}
		seen[col.Name] = struct{}{}
		dtype, n, err := columnDType(col.Values)
		if err != nil {
			return fmt.Errorf("%w: attribute %q: %v", ErrWrongType, col.Name, err)
		}
		if n != len(table.IDs) {
			return fmt.Errorf("%w: attribute %q holds %d values over %d nodes",
				ErrBadValue, col.Name, n, len(table.IDs))
		}
		var values yaml.Node
		if err := values.Encode(col.Values); err != nil {
			return fmt.Errorf("%w: attribute %q: %v", ErrStorage, col.Name, err)
		}
		doc.Attrs = append(doc.Attrs, nodeColDoc{Name: col.Name, DType: dtype, Values: values})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode node table: %v", ErrStorage, err)
	}
	path := NodeTablePath(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: node table %q at %s", ErrExists, name, redactPath(path))
		}
		return fmt.Errorf("%w: write %s: %v", ErrStorage, redactPath(path), err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, redactPath(path), err)
	}
	return nil
}

// LoadNodeTable reads the node table named name under dir.
func LoadNodeTable(dir, name string) (NodeTable, error) {
	if err := validateName(name); err != nil {
		return NodeTable{}, err
	}
	path := NodeTablePath(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NodeTable{}, fmt.Errorf("%w: node table %q in %s", ErrMissing, name, redactPath(dir))
		}
		return NodeTable{}, fmt.Errorf("%w: read %s: %v", ErrStorage, redactPath(path), err)
	}
	var doc nodeTableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return NodeTable{}, fmt.Errorf("%w: decode %s: %v", ErrWrongType, redactPath(path), err)
	}
	if doc.Version != nodeTableVersion {
		return NodeTable{}, fmt.Errorf("%w: node table version %d, want %d",
			ErrStorage, doc.Version, nodeTableVersion)
	}
	table := NodeTable{IDs: doc.NodeID}
	for _, col := range doc.Attrs {
		values, err := decodeColumn(col.DType, col.Values)
		if err != nil {
			return NodeTable{}, fmt.Errorf("%w: attribute %q in %s: %v",
				ErrWrongType, col.Name, redactPath(path), err)
		}
		table.Columns = append(table.Columns, NodeColumn{Name: col.Name, Values: values})
	}
	return table, nil
}

// columnDType maps a column value slice to its dtype tag and length.
func columnDType(values any) (string, int, error) {
	switch v := values.(type) {
	case []float64:
		return "float64", len(v), nil
	case []int64:
		return "int64", len(v), nil
	case []string:
		return "string", len(v), nil
	case []bool:
		return "bool", len(v), nil
	default:
		return "", 0, fmt.Errorf("unsupported column type %T", values)
	}
}

// decodeColumn rebuilds a typed column from its dtype tag.
func decodeColumn(dtype string, node yaml.Node) (any, error) {
	switch dtype {
	case "float64":
		var v []float64
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "int64":
		var v []int64
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "string":
		var v []string
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "bool":
		var v []bool
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
}
