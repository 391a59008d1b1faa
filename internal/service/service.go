package service

import (
	"context"

	"github.com/pkg/errors"

	"marginalia/internal/domain"
	"marginalia/internal/repository"
)

// AnnotationEvent is the payload for single-annotation events.
type AnnotationEvent struct {
	Scope domain.Scope `json:"scope"`
	ID    string       `json:"id"`
}

// SyncEvent is the payload for full-sync events.
type SyncEvent struct {
	Scope domain.Scope `json:"scope"`
	Count int          `json:"count"`
}

// CommentEvent is the payload for comment events.
type CommentEvent struct {
	AnnotationID string `json:"annotationId,omitempty"`
	CommentID    string `json:"commentId"`
}

// AnnotationService coordinates annotation persistence and publishes
// change events. Validation happens here; handlers only translate HTTP.
type AnnotationService struct {
	repo repository.Repository
	bus  *EventBus
}

func NewAnnotationService(repo repository.Repository, bus *EventBus) *AnnotationService {
	return &AnnotationService{repo: repo, bus: bus}
}

// Save upserts one annotation and replaces its comment set. The id must be
// present; the server never generates annotation identity.
func (s *AnnotationService) Save(ctx context.Context, scope domain.Scope, a *domain.Annotation) error {
	if a == nil || a.ID == "" {
		return errors.Wrap(domain.ErrValidation, "annotation id is required")
	}
	if err := s.repo.SaveAnnotation(ctx, scope, a); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventAnnotationSaved, Payload: AnnotationEvent{Scope: scope, ID: a.ID}})
	return nil
}

// Sync makes the scope's store match the submitted set exactly: every
// annotation is upserted, then everything in scope not in the set is
// pruned. An empty set empties the scope. The first failed save aborts
// before the prune runs, leaving earlier writes in place.
func (s *AnnotationService) Sync(ctx context.Context, scope domain.Scope, annotations []*domain.Annotation) error {
	keepIDs := make([]string, 0, len(annotations))
	for _, a := range annotations {
		if a == nil || a.ID == "" {
			return errors.Wrap(domain.ErrValidation, "annotation id is required")
		}
		if err := s.repo.SaveAnnotation(ctx, scope, a); err != nil {
			return err
		}
		keepIDs = append(keepIDs, a.ID)
	}

	if err := s.repo.PruneAnnotationsExcept(ctx, scope, keepIDs); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventAnnotationsSynced, Payload: SyncEvent{Scope: scope, Count: len(keepIDs)}})
	return nil
}

// List returns the scope's annotations matching the filter.
func (s *AnnotationService) List(ctx context.Context, scope domain.Scope, filter domain.ListFilter) ([]*domain.Annotation, error) {
	return s.repo.ListAnnotations(ctx, scope, filter)
}

// Get returns one annotation with its comments, or (nil, nil) when the
// (id, scope) pair matches nothing.
func (s *AnnotationService) Get(ctx context.Context, scope domain.Scope, id string) (*domain.Annotation, error) {
	if id == "" {
		return nil, errors.Wrap(domain.ErrValidation, "annotation id is required")
	}
	return s.repo.GetAnnotation(ctx, scope, id)
}

// Delete removes an annotation and its comments. Unknown ids and scope
// mismatches succeed silently.
func (s *AnnotationService) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if id == "" {
		return errors.Wrap(domain.ErrValidation, "annotation id is required")
	}
	if err := s.repo.DeleteAnnotation(ctx, scope, id); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventAnnotationDeleted, Payload: AnnotationEvent{Scope: scope, ID: id}})
	return nil
}

// AddComment attaches a comment to an annotation without touching the
// annotation's other comments.
func (s *AnnotationService) AddComment(ctx context.Context, annotationID string, c *domain.Comment) error {
	if annotationID == "" || c == nil || c.ID == "" {
		return errors.Wrap(domain.ErrValidation, "annotation id and comment id are required")
	}
	if err := s.repo.AddComment(ctx, annotationID, c); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventCommentAdded, Payload: CommentEvent{AnnotationID: annotationID, CommentID: c.ID}})
	return nil
}

// UpdateComment rewrites a comment in place by id.
func (s *AnnotationService) UpdateComment(ctx context.Context, c *domain.Comment) error {
	if c == nil || c.ID == "" {
		return errors.Wrap(domain.ErrValidation, "comment id is required")
	}
	if err := s.repo.UpdateComment(ctx, c); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventCommentUpdated, Payload: CommentEvent{CommentID: c.ID}})
	return nil
}

// DeleteComment removes a single comment by id.
func (s *AnnotationService) DeleteComment(ctx context.Context, commentID string) error {
	if commentID == "" {
		return errors.Wrap(domain.ErrValidation, "comment id is required")
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventCommentDeleted, Payload: CommentEvent{CommentID: commentID}})
	return nil
}
