package repository

import (
	"context"

	"marginalia/internal/domain"
)

// Repository defines the interface for annotation data access. Annotation
// operations are confined to the given scope; comment operations address
// rows by id alone.
type Repository interface {
	// SaveAnnotation upserts the annotation under the scope and replaces
	// its full comment set. Last writer wins unconditionally.
	SaveAnnotation(ctx context.Context, scope domain.Scope, a *domain.Annotation) error

	// GetAnnotation returns the annotation with its comments, or (nil, nil)
	// when no row matches the (id, scope) pair.
	GetAnnotation(ctx context.Context, scope domain.Scope, id string) (*domain.Annotation, error)

	// ListAnnotations returns all annotations in scope matching the filter,
	// ordered by pageNumber ascending then date descending.
	ListAnnotations(ctx context.Context, scope domain.Scope, filter domain.ListFilter) ([]*domain.Annotation, error)

	// DeleteAnnotation removes the annotation and its comments. A scope
	// mismatch or missing id is a silent no-op.
	DeleteAnnotation(ctx context.Context, scope domain.Scope, id string) error

	// PruneAnnotationsExcept deletes every annotation in scope whose id is
	// not in keepIDs, cascading to comments. Empty keepIDs empties the scope.
	PruneAnnotationsExcept(ctx context.Context, scope domain.Scope, keepIDs []string) error

	// Comment operations, independent of annotation saves.
	AddComment(ctx context.Context, annotationID string, c *domain.Comment) error
	UpdateComment(ctx context.Context, c *domain.Comment) error
	DeleteComment(ctx context.Context, commentID string) error

	// Close releases resources
	Close() error
}
