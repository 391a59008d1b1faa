// Package domain defines the core types for the Marginalia annotation server.
//
// This package contains the entities the rest of the system persists and
// serves: annotations, their comment threads, and the scoping and filtering
// value objects used by the repository.
//
// # Core Types
//
// Annotation represents a single user-authored mark on a PDF page together
// with its comment thread. Its identity is client-generated; the server
// never mints annotation ids.
//
// Comment represents one entry in an annotation's discussion thread and is
// exclusively owned by its parent annotation.
//
// Scope is the (docId, username) pair that partitions all annotation data
// into isolated namespaces. No annotation is visible outside its scope.
//
// # Error Taxonomy
//
// The package exports the error sentinels shared across layers:
// ErrValidation, ErrNotFound, ErrDecode and ErrStorage. Infrastructure
// packages wrap these with context; handlers classify them with errors.Is
// when mapping to HTTP status codes.
//
// # Design Principles
//
// - No database or transport dependencies
// - Viewer-internal fields (Konva state, pdf.js codes) are carried opaquely
// - Nullable presentation fields use pointer types so absence round-trips
package domain
