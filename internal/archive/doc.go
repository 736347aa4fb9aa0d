// Package archive implements the book archiving pipeline: chapter discovery
// from the listing page, part traversal, bounded image acquisition, and
// per-chapter PDF assembly with a generated index.
package archive
