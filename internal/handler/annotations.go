package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"marginalia/internal/domain"
	"marginalia/internal/service"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AnnotationHandler handles annotation API requests.
type AnnotationHandler struct {
	svc *service.AnnotationService
}

// NewAnnotationHandler creates a new annotation handler.
func NewAnnotationHandler(svc *service.AnnotationService) *AnnotationHandler {
	return &AnnotationHandler{svc: svc}
}

// scopeFromRequest resolves the (docId, username) scope from query
// parameters. fingerprint and ae_username are accepted as aliases so
// older viewer builds keep working; missing values fall back to the
// shared defaults.
func scopeFromRequest(r *http.Request) domain.Scope {
	q := r.URL.Query()

	docID := q.Get("docId")
	if docID == "" {
		docID = q.Get("fingerprint")
	}
	username := q.Get("username")
	if username == "" {
		username = q.Get("ae_username")
	}
	return domain.NewScope(docID, username)
}

func filterFromRequest(r *http.Request) domain.ListFilter {
	q := r.URL.Query()

	var filter domain.ListFilter
	if v := q.Get("pageNumber"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.PageNumber = &n
		}
	}
	filter.Author = q.Get("author")
	if v := q.Get("type"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Type = &n
		}
	}
	filter.Subtype = q.Get("subtype")
	return filter
}

// List returns the scope's annotations, optionally filtered by
// pageNumber, author, type and subtype.
func (h *AnnotationHandler) List(w http.ResponseWriter, r *http.Request) {
	annotations, err := h.svc.List(r.Context(), scopeFromRequest(r), filterFromRequest(r))
	if err != nil {
		log.Error().Err(err).Msg("list annotations")
		h.writeServiceError(w, err, "Failed to list annotations")
		return
	}
	if annotations == nil {
		annotations = []*domain.Annotation{}
	}
	h.writeJSON(w, annotations, http.StatusOK)
}

// Save handles POST bodies of either shape: a single annotation object
// is upserted in place, while an array is treated as the viewer's full
// state and synced, pruning everything in scope that the array omits.
func (h *AnnotationHandler) Save(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "Failed to read request body", err.Error(), http.StatusBadRequest)
		return
	}

	scope := scopeFromRequest(r)
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var annotations []*domain.Annotation
		if err := json.Unmarshal(body, &annotations); err != nil {
			h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.svc.Sync(r.Context(), scope, annotations); err != nil {
			log.Error().Err(err).Int("count", len(annotations)).Msg("sync annotations")
			h.writeServiceError(w, err, "Failed to sync annotations")
			return
		}
		h.writeJSON(w, annotations, http.StatusOK)
		return
	}

	var annotation domain.Annotation
	if err := json.Unmarshal(body, &annotation); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.svc.Save(r.Context(), scope, &annotation); err != nil {
		log.Error().Err(err).Str("id", annotation.ID).Msg("save annotation")
		h.writeServiceError(w, err, "Failed to save annotation")
		return
	}
	h.writeJSON(w, annotation, http.StatusOK)
}

// Update upserts a single annotation. Identical semantics to a
// single-object Save; PUT exists for clients that distinguish the verbs.
func (h *AnnotationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var annotation domain.Annotation
	if err := json.NewDecoder(r.Body).Decode(&annotation); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.Save(r.Context(), scopeFromRequest(r), &annotation); err != nil {
		log.Error().Err(err).Str("id", annotation.ID).Msg("update annotation")
		h.writeServiceError(w, err, "Failed to update annotation")
		return
	}
	h.writeJSON(w, annotation, http.StatusOK)
}

// Delete removes the annotation named by the id query parameter.
func (h *AnnotationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, "missing_id", "Annotation id is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(r.Context(), scopeFromRequest(r), id); err != nil {
		log.Error().Err(err).Str("id", id).Msg("delete annotation")
		h.writeServiceError(w, err, "Failed to delete annotation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commentPatch is the PATCH request body for comment operations.
type commentPatch struct {
	Action       string          `json:"action"`
	AnnotationID string          `json:"annotationId,omitempty"`
	CommentID    string          `json:"commentId,omitempty"`
	Comment      *domain.Comment `json:"comment,omitempty"`
}

// PatchComments dispatches comment mutations by action: addComment,
// updateComment or deleteComment.
func (h *AnnotationHandler) PatchComments(w http.ResponseWriter, r *http.Request) {
	var req commentPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "addComment":
		if req.AnnotationID == "" {
			h.writeError(w, "missing_params", "annotationId is required", http.StatusBadRequest)
			return
		}
		if req.Comment == nil {
			h.writeError(w, "missing_comment", "comment is required", http.StatusBadRequest)
			return
		}
		if err := h.svc.AddComment(r.Context(), req.AnnotationID, req.Comment); err != nil {
			log.Error().Err(err).Str("annotationId", req.AnnotationID).Msg("add comment")
			h.writeServiceError(w, err, "Failed to add comment")
			return
		}

	case "updateComment":
		if req.Comment == nil {
			h.writeError(w, "missing_comment", "comment is required", http.StatusBadRequest)
			return
		}
		if err := h.svc.UpdateComment(r.Context(), req.Comment); err != nil {
			log.Error().Err(err).Str("commentId", req.Comment.ID).Msg("update comment")
			h.writeServiceError(w, err, "Failed to update comment")
			return
		}

	case "deleteComment":
		if req.CommentID == "" {
			h.writeError(w, "missing_comment_id", "commentId is required", http.StatusBadRequest)
			return
		}
		if err := h.svc.DeleteComment(r.Context(), req.CommentID); err != nil {
			log.Error().Err(err).Str("commentId", req.CommentID).Msg("delete comment")
			h.writeServiceError(w, err, "Failed to delete comment")
			return
		}

	default:
		h.writeError(w, "unknown_action", "action must be addComment, updateComment or deleteComment", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// writeServiceError maps service errors to HTTP status codes.
func (h *AnnotationHandler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, msg, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, msg, err.Error(), http.StatusNotFound)
	default:
		h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
	}
}

func (h *AnnotationHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode json response")
	}
}

func (h *AnnotationHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: error, Details: details}); err != nil {
		log.Error().Err(err).Msg("encode error response")
	}
}
