package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/metrics"
	"github.com/fitreserve/mailroom/internal/queue"
	"github.com/fitreserve/mailroom/internal/redis"
)

// EmailRepository defines the database operations the API needs.
type EmailRepository interface {
	GetMessage(ctx context.Context, id uuid.UUID) (*db.Message, error)
	ListMessages(ctx context.Context, status string, limit, offset int) ([]*db.Message, error)
	CancelMessage(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*db.QueueStats, error)
}

// EnqueueService accepts new emails into the queue.
type EnqueueService interface {
	Enqueue(ctx context.Context, params queue.EnqueueParams) (*queue.EnqueueResult, error)
}

// EnqueueResponse is returned after an enqueue attempt. A preference
// denial is a successful request with Success=false and a reason.
type EnqueueResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	repo        EmailRepository
	enqueue     EnqueueService
	trigger     queue.Trigger
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, repo EmailRepository, enq EnqueueService, trigger queue.Trigger) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		enqueue:     enq,
		trigger:     trigger,
		idempotency: nil, // Idempotency disabled by default
	}
}

// NewHandlerWithIdempotency creates a handler with idempotency support
func NewHandlerWithIdempotency(logger *zap.Logger, repo EmailRepository, enq EnqueueService, trigger queue.Trigger, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		enqueue:     enq,
		trigger:     trigger,
		idempotency: idempotency,
	}
}

// CreateEmail handles POST /v1/emails
// Supports deduplication via the Idempotency-Key header.
func (h *Handler) CreateEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var params queue.EnqueueParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	// Check idempotency if key provided
	if idempotencyKey != "" && h.idempotency != nil {
		cachedResult, err := h.idempotency.CheckOrReserve(ctx, idempotencyKey)

		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cachedResult != nil {
			metrics.RecordIdempotencyHit()
			resp := EnqueueResponse{
				Success:   cachedResult.Reason == "",
				MessageID: cachedResult.MessageID,
				Error:     cachedResult.Reason,
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cachedResult.StatusCode)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
	}

	result, err := h.enqueue.Enqueue(ctx, params)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidParams) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid email parameters", err.Error())
		} else {
			h.logger.Error("failed to enqueue email",
				zap.Error(err),
				zap.String("email_type", string(params.EmailType)),
			)
			h.writeError(w, http.StatusInternalServerError, "enqueue_error", "Failed to enqueue email", "")
		}
		if idempotencyKey != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(ctx, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		return
	}

	if !result.Queued {
		// Preference denial: the request succeeded, nothing was queued.
		// Cached for replay so a retry isn't rejected as a duplicate.
		h.logger.Info("email not queued",
			zap.String("email_type", string(params.EmailType)),
			zap.String("reason", result.Reason),
		)
		if idempotencyKey != "" && h.idempotency != nil {
			cached := &redis.IdempotencyResult{
				StatusCode: http.StatusOK,
				Reason:     result.Reason,
			}
			if err := h.idempotency.Store(ctx, idempotencyKey, cached); err != nil {
				h.logger.Warn("failed to store idempotency result",
					zap.Error(err),
					zap.String("idempotency_key", idempotencyKey),
				)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: result.Reason})
		return
	}

	h.logger.Info("email queued",
		zap.String("id", result.ID.String()),
		zap.String("email_type", string(params.EmailType)),
		zap.String("to", params.To),
	)

	// Store idempotency result
	if idempotencyKey != "" && h.idempotency != nil {
		cached := &redis.IdempotencyResult{
			MessageID:  result.ID.String(),
			StatusCode: http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, idempotencyKey, cached); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(EnqueueResponse{Success: true, MessageID: result.ID.String()})
}

// GetEmail handles GET /v1/emails/{id}
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")

	msgID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid email ID", "ID must be a valid UUID")
		return
	}

	msg, err := h.repo.GetMessage(ctx, msgID)
	if err != nil {
		if errors.Is(err, db.ErrMessageNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Email not found", "")
			return
		}
		h.logger.Error("failed to get email",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get email", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(msg)
}

// ListEmails handles GET /v1/emails?status=pending&limit=20&offset=0
func (h *Handler) ListEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := r.URL.Query().Get("status")
	if status != "" {
		switch status {
		case db.StatusPending, db.StatusProcessing, db.StatusSent, db.StatusFailed, db.StatusCancelled:
		default:
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid status",
				"status must be one of: pending, processing, sent, failed, cancelled")
			return
		}
	}

	// Parse pagination parameters with defaults
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	messages, err := h.repo.ListMessages(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list emails",
			zap.Error(err),
			zap.String("status", status),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list emails", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":   messages,
		"limit":  limit,
		"offset": offset,
		"count":  len(messages),
	})
}

// CancelEmail handles POST /v1/emails/{id}/cancel
func (h *Handler) CancelEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	msgID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid email ID", "ID must be a valid UUID")
		return
	}

	err = h.repo.CancelMessage(ctx, msgID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrMessageNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Email not found", "")
		case errors.Is(err, db.ErrNotCancellable):
			h.writeError(w, http.StatusConflict, "not_cancellable",
				"Email cannot be cancelled",
				"Only pending or failed emails can be cancelled")
		default:
			h.logger.Error("failed to cancel email",
				zap.Error(err),
				zap.String("id", idStr),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel email", "")
		}
		return
	}

	h.logger.Info("email cancelled", zap.String("id", idStr))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     idStr,
		"status": db.StatusCancelled,
	})
}

// ProcessQueue handles POST /v1/queue/process
// Nudges the worker to run a pass immediately instead of waiting for
// the next scheduled tick. The pass itself runs asynchronously.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	h.trigger.Nudge(r.Context())

	h.logger.Info("queue processing triggered")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "processing triggered",
	})
}

// QueueStats handles GET /v1/queue/stats
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.repo.Stats(ctx)
	if err != nil {
		h.logger.Error("failed to get queue stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get queue stats", "")
		return
	}

	metrics.SetQueueDepth(db.StatusPending, stats.Pending)
	metrics.SetQueueDepth(db.StatusProcessing, stats.Processing)
	metrics.SetQueueDepth(db.StatusSent, stats.Sent)
	metrics.SetQueueDepth(db.StatusFailed, stats.Failed)
	metrics.SetQueueDepth(db.StatusCancelled, stats.Cancelled)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(stats)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
