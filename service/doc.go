// Package service owns the per-instrument books and everything that
// touches them: the sequencing gate in front of each book, the
// subscriber registry, and view publication.
//
// Engine is the only write entry point. Feed sources call Apply;
// transports call Subscribe and SnapshotView. Neither side needs to know
// about the other.
package service
