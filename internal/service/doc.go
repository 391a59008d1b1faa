// Package service implements the business logic for annotation
// persistence and synchronization.
//
// AnnotationService sits between the HTTP handlers and the repository:
// it validates input, delegates storage, and publishes change events on
// an EventBus that the SSE hub relays to connected viewers.
//
// The Sync operation implements full-state reconciliation: the submitted
// annotation set becomes the scope's exact contents, with everything
// else pruned in the same call.
package service
