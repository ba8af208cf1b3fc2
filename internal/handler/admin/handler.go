package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/handler"
	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/storage"
	"github.com/decet2025-sketch/cert-api/internal/worker"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

// Handler services the internal admin RPC. Actions form a closed set
// matched exhaustively below; anything else is INVALID_ACTION.
type Handler struct {
	events   repository.WebhookEventRepository
	learners repository.LearnerRepository
	resender *certificate.Resender
	retries  *worker.RetrySweep
	store    storage.Store
	signer   *storage.Signer
	logger   *logger.Logger
}

func NewHandler(events repository.WebhookEventRepository, learners repository.LearnerRepository, resender *certificate.Resender, retries *worker.RetrySweep, store storage.Store, signer *storage.Signer, log *logger.Logger) *Handler {
	return &Handler{
		events:   events,
		learners: learners,
		resender: resender,
		retries:  retries,
		store:    store,
		signer:   signer,
		logger:   log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admin/actions", h.HandleAction)
	r.GET("/certificates/download", h.HandleDownload)
}

func (h *Handler) HandleAction(c *gin.Context) {
	var req model.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed action request"))
		return
	}

	switch req.Action {
	case model.ActionRetryWebhook:
		h.retryWebhook(c, req.Payload)
	case model.ActionResendCertificate:
		h.resendCertificate(c, req.Payload)
	case model.ActionDownloadCertificate:
		h.downloadCertificate(c, req.Payload)
	case model.ActionListWebhooks:
		h.listWebhooks(c, req.Payload)
	default:
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidAction, fmt.Sprintf("unknown action %q", req.Action)))
	}
}

func (h *Handler) retryWebhook(c *gin.Context, payload json.RawMessage) {
	var p model.RetryWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.WebhookEventID == "" {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "webhook_event_id is required"))
		return
	}
	id, err := uuid.Parse(p.WebhookEventID)
	if err != nil {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "webhook_event_id must be a uuid"))
		return
	}

	if err := h.retries.RetryOne(c.Request.Context(), id); err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondSuccess(c, http.StatusOK, gin.H{"message": "webhook event reprocessed", "webhook_event_id": id})
}

func (h *Handler) resendCertificate(c *gin.Context, payload json.RawMessage) {
	var p model.ResendCertificatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed resend payload"))
		return
	}

	ctx := c.Request.Context()
	switch {
	case p.OrganizationWebsite != "":
		summary, err := h.resender.ResendOrganization(ctx, p.OrganizationWebsite)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		handler.RespondSuccess(c, http.StatusOK, summary)
	case p.LearnerEmail != "" && p.CourseID != "":
		if err := h.resender.Resend(ctx, p.LearnerEmail, p.CourseID); err != nil {
			handler.RespondError(c, err)
			return
		}
		handler.RespondSuccess(c, http.StatusOK, gin.H{"message": "certificate resent"})
	default:
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "either organization_website or learner_email and course_id are required"))
	}
}

func (h *Handler) downloadCertificate(c *gin.Context, payload json.RawMessage) {
	var p model.DownloadCertificatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.LearnerEmail == "" || p.CourseID == "" {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "learner_email and course_id are required"))
		return
	}

	ctx := c.Request.Context()
	learner, err := h.learners.GetByCourseAndEmail(ctx, p.CourseID, p.LearnerEmail)
	if err != nil {
		handler.RespondError(c, apperrors.Internal(err))
		return
	}
	if learner == nil {
		handler.RespondError(c, apperrors.NotFound(apperrors.CodeLearnerNotFound, "learner not found for course and email"))
		return
	}
	if learner.CertificateFileID == nil {
		handler.RespondError(c, apperrors.NotFound(apperrors.CodeCertificateNotFound, "no certificate on record for learner"))
		return
	}

	exists, err := h.store.Exists(ctx, *learner.CertificateFileID)
	if err != nil {
		handler.RespondError(c, apperrors.Internal(err))
		return
	}
	if !exists {
		handler.RespondError(c, apperrors.NotFound(apperrors.CodeCertificateNotFound, "certificate artifact is missing from storage"))
		return
	}

	token, err := h.signer.Sign(*learner.CertificateFileID, learner.Email)
	if err != nil {
		handler.RespondError(c, apperrors.Internal(err))
		return
	}

	handler.RespondSuccess(c, http.StatusOK, gin.H{
		"download_url": fmt.Sprintf("/api/v1/certificates/download?token=%s", token),
	})
}

func (h *Handler) listWebhooks(c *gin.Context, payload json.RawMessage) {
	var p model.ListWebhooksPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed list payload"))
			return
		}
	}

	filter := model.WebhookListFilter{Limit: p.Limit, Offset: p.Offset}
	if p.Status != "" {
		status := model.WebhookStatus(p.Status)
		switch status {
		case model.WebhookStatusReceived, model.WebhookStatusProcessing, model.WebhookStatusProcessed, model.WebhookStatusFailed:
			filter.Status = &status
		default:
			handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, fmt.Sprintf("unknown status %q", p.Status)))
			return
		}
	}

	events, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		handler.RespondError(c, apperrors.Internal(err))
		return
	}
	handler.RespondSuccess(c, http.StatusOK, gin.H{"webhooks": events, "count": len(events)})
}

// HandleDownload resolves a signed download token and streams the artifact.
func (h *Handler) HandleDownload(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		handler.RespondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "token is required"))
		return
	}

	fileID, _, err := h.signer.Verify(token)
	if err != nil {
		handler.RespondError(c, apperrors.Unauthorized(apperrors.CodeInvalidSignature, "download token is invalid or expired"))
		return
	}

	data, filename, err := h.store.Get(c.Request.Context(), fileID)
	if err != nil {
		handler.RespondError(c, apperrors.NotFound(apperrors.CodeCertificateNotFound, "certificate artifact not found"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
