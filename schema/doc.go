// Package schema describes the fixed on-disk layout of an observation
// record: an ordered list of named fields, each with an element kind and an
// optional shape. A Schema computes byte offsets once at construction and
// provides raw access to individual field regions of a record without
// decoding the rest.
//
// All multi-byte values are little-endian on disk regardless of platform.
package schema
