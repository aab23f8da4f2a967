package handler

import (
	"net/http"
	"time"

	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	dateLayout              = "2006-01-02"
	defaultCleanupRetention = 90
)

type AuditHandler struct {
	audit *service.AuditService
}

func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List GET /api/audit/logs
func (h *AuditHandler) List(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := h.audit.List(middleware.CurrentUser(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, auditPage(page))
}

func (h *AuditHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.audit.Get(middleware.CurrentUser(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, auditResponse(entry))
}

func (h *AuditHandler) Stats(c *gin.Context) {
	stats, err := h.audit.Stats(middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Cleanup DELETE /api/audit/cleanup?days=N
func (h *AuditHandler) Cleanup(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultCleanupRetention)
	if !ok {
		return
	}
	deleted, err := h.audit.Cleanup(middleware.CurrentUser(c), requestMeta(c), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted": deleted,
		"days":    days,
	})
}

// parseAuditFilter reads action, user, target_user, severity, date_from,
// date_to, search, page and page_size. date_to covers the whole day.
func parseAuditFilter(c *gin.Context) (repository.AuditFilter, error) {
	var f repository.AuditFilter

	if raw := c.Query("action"); raw != "" {
		action := models.AuditAction(raw)
		if !action.Valid() {
			return f, apperror.Validation("unknown action")
		}
		f.Action = &action
	}
	if raw := c.Query("severity"); raw != "" {
		severity := models.Severity(raw)
		if !severity.Valid() {
			return f, apperror.Validation("unknown severity")
		}
		f.Severity = &severity
	}

	var err error
	if f.ActorID, err = optionalUUID(c, "user"); err != nil {
		return f, err
	}
	if f.TargetUserID, err = optionalUUID(c, "target_user"); err != nil {
		return f, err
	}

	if raw := c.Query("date_from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, apperror.Validation("date_from must be YYYY-MM-DD")
		}
		f.From = &from
	}
	if raw := c.Query("date_to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, apperror.Validation("date_to must be YYYY-MM-DD")
		}
		to = to.Add(24 * time.Hour)
		f.To = &to
	}

	f.Search = c.Query("search")

	if f.Page, err = parseIntQuery(c, "page", 1); err != nil {
		return f, err
	}
	if f.PageSize, err = parseIntQuery(c, "page_size", repository.DefaultAuditPageSize); err != nil {
		return f, err
	}
	return f, nil
}

func optionalUUID(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperror.Validation("invalid " + name)
	}
	return &id, nil
}
