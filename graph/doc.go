// Package graph models multiplex networks: nodes whose identity is stable
// across many observational layers (time snapshots, interaction modes), with
// per-observation state persisted to disk as memory-mapped fixed-layout
// records.
//
// Two cooperating types form the core. A Definition fixes the architecture
// of a graph once: the ordered node identity set and the record schema
// (per-node activity, node-pair adjacency, and caller-declared layer
// fields). A Store is a growable, memory-mapped sequence of observation
// records conforming to that schema, supporting partial writes to subsets
// of fields and observations via Modify.
//
// Access is single-writer, single-process: a Modify call remaps the backing
// file writable, optionally grows it, writes, flushes and remaps read-only
// as sequential unguarded steps. Callers must serialize writers and keep
// readers away during writes.
package graph
