package graph

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Qualified type names used as filename prefixes. Keeping the package path
// in the prefix lets many entity kinds share one directory without
// collisions.
const (
	definitionQualifier = "plexus.graph.Definition"
	storeQualifier      = "plexus.graph.Store"
	nodeTableQualifier  = "plexus.graph.NodeTable"
)

// DefinitionPath returns the metadata path for a named definition:
// <dir>/plexus.graph.Definition.Def.<name>.yaml
func DefinitionPath(dir, name string) string {
	return filepath.Join(dir, definitionQualifier+".Def."+name+".yaml")
}

// StorePath returns the data path for a named observation store:
// <dir>/plexus.graph.Store.Dat.<name>.dat
func StorePath(dir, name string) string {
	return filepath.Join(dir, storeQualifier+".Dat."+name+".dat")
}

// NodeTablePath returns the path for a named node attribute table:
// <dir>/plexus.graph.NodeTable.<name>.yaml
func NodeTablePath(dir, name string) string {
	return filepath.Join(dir, nodeTableQualifier+"."+name+".yaml")
}

// validateName rejects entity names that would change the derived path's
// directory or corrupt the filename.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty entity name", ErrBadValue)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("%w: entity name %q contains path characters", ErrBadValue, name)
	}
	return nil
}

// redactPath reduces a full path to .../<parent>/<basename> for error
// messages, so messages stay useful without leaking full directory layouts.
func redactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}
