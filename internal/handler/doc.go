// Package handler implements HTTP request handlers for the Marginalia API.
//
// This package provides the HTTP layer for the annotation REST API,
// handling annotation CRUD, full-state synchronization, and comment
// patch operations.
//
// # Handlers
//
// AnnotationHandler serves /api/annotations. POST accepts either a
// single annotation (upsert) or an array (full sync with prune); PUT
// updates, DELETE removes by id, and PATCH dispatches comment actions.
//
// Middleware provides panic recovery, CORS support and request logging.
//
// # Scope Resolution
//
// Every annotation request carries its (docId, username) scope in query
// parameters. fingerprint and ae_username are accepted as aliases, and
// missing values fall back to shared defaults, so unauthenticated or
// legacy viewers still get a working, if shared, namespace.
//
// # Response Format
//
// Success responses return JSON with appropriate status codes (200, 204).
// Error responses return JSON with an {error, details} structure; the
// error field carries a stable machine-readable token (missing_id,
// missing_comment, unknown_action) for the viewer to branch on.
package handler
