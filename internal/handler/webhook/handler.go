package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/decet2025-sketch/cert-api/internal/handler"
	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/service/graphy"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/messaging"
)

const signatureHeader = "X-Graphy-Signature"

// Handler ingests completion webhooks from the learning platform. Receipt
// and processing are decoupled: the handler persists the event, then hands
// off to the broker when one is configured and to the worker inline
// otherwise.
type Handler struct {
	events repository.WebhookEventRepository
	worker *certificate.Worker
	broker messaging.Broker
	secret string
	logger *logger.Logger
}

func NewHandler(events repository.WebhookEventRepository, worker *certificate.Worker, broker messaging.Broker, secret string, log *logger.Logger) *Handler {
	return &Handler{
		events: events,
		worker: worker,
		broker: broker,
		secret: secret,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/graphy", h.HandleGraphyWebhook)
}

func (h *Handler) HandleGraphyWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "failed to read request body"))
		return
	}

	// Signature is enforced only when both sides can participate: header
	// present and secret configured.
	if sig := c.GetHeader(signatureHeader); sig != "" && h.secret != "" {
		if !graphy.VerifySignature(body, sig, h.secret) {
			handler.RespondError(c, apperrors.Unauthorized(apperrors.CodeInvalidSignature, "webhook signature verification failed"))
			return
		}
	}

	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed webhook payload"))
		return
	}
	if payload.CourseID == "" || payload.Email == "" {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "course_id and email are required"))
		return
	}

	ctx := c.Request.Context()

	// Dedup. With an event_id the key is exact; without one, an unprocessed
	// event for the same course and email stands in for it.
	if payload.EventID != "" {
		existing, err := h.events.GetByEventID(ctx, payload.EventID)
		if err != nil {
			handler.RespondError(c, apperrors.Internal(err))
			return
		}
		if existing != nil {
			if existing.Status == model.WebhookStatusProcessed {
				handler.RespondSuccess(c, http.StatusOK, gin.H{"message": "event already processed", "webhook_event_id": existing.ID})
				return
			}
			h.dispatch(c, existing)
			return
		}
	} else {
		pending, err := h.events.GetPendingByCourseAndEmail(ctx, payload.CourseID, payload.Email)
		if err != nil {
			handler.RespondError(c, apperrors.Internal(err))
			return
		}
		if pending != nil {
			h.dispatch(c, pending)
			return
		}
	}

	event := &model.WebhookEvent{
		Source:         "graphy",
		CourseID:       payload.CourseID,
		LearnerEmail:   payload.Email,
		Payload:        body,
		CompletionDate: payload.CompletedAt,
		Status:         model.WebhookStatusReceived,
	}
	if payload.EventID != "" {
		eventID := payload.EventID
		event.EventID = &eventID
	}
	if err := h.events.Create(ctx, event); err != nil {
		handler.RespondError(c, apperrors.Internal(err))
		return
	}

	h.dispatch(c, event)
}

// dispatch hands a persisted event to the pipeline. Queue publish failure
// after persistence marks the event failed so the retry sweep can recover
// it, and reports ENQUEUE_ERROR.
func (h *Handler) dispatch(c *gin.Context, event *model.WebhookEvent) {
	ctx := c.Request.Context()

	// A provider re-delivery can land after a previous attempt failed. The
	// worker only claims received events, so flip the status back first.
	if event.Status == model.WebhookStatusFailed {
		if _, err := h.events.ResetForRetry(ctx, event.ID); err != nil {
			handler.RespondError(c, apperrors.Internal(err))
			return
		}
		event.Status = model.WebhookStatusReceived
	}

	if h.broker != nil {
		msg := messaging.DispatchMessage{WebhookEventID: event.ID.String()}
		if err := h.broker.Publish(ctx, messaging.WebhookEventsChannel, msg); err != nil {
			h.logger.Error(err, "failed to enqueue webhook event", "event", event.ID.String())
			if markErr := h.events.MarkFailed(ctx, event.ID, "enqueue failed: "+err.Error()); markErr != nil {
				h.logger.Error(markErr, "failed to mark webhook event failed after enqueue error", "event", event.ID.String())
			}
			handler.RespondError(c, apperrors.Wrap(apperrors.CodeEnqueue, http.StatusInternalServerError, "failed to enqueue webhook event", err))
			return
		}
		handler.RespondSuccess(c, http.StatusAccepted, gin.H{"message": "event accepted", "webhook_event_id": event.ID})
		return
	}

	if err := h.worker.Process(ctx, event.ID); err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondSuccess(c, http.StatusOK, gin.H{"message": "event processed", "webhook_event_id": event.ID})
}
