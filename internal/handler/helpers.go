package handler

import (
	"strconv"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// uuidParam parses a path parameter and writes a validation error on failure
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	v, err := parseIntQuery(c, name, fallback)
	if err != nil {
		response.Error(c, err)
		return 0, false
	}
	return v, true
}

func parseIntQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation(name + " must be an integer")
	}
	return v, nil
}

func userSummary(u *models.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{
		"id":        u.ID,
		"username":  u.Username,
		"full_name": u.DisplayName(),
		"role":      u.Role,
	}
}

func userResponse(u *models.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"first_name":   u.FirstName,
		"last_name":    u.LastName,
		"role":         u.Role,
		"is_active":    u.IsActive,
		"is_admin":     u.IsAdmin(),
		"is_coach":     u.IsCoach(),
		"can_validate": u.CanValidate(),
		"last_login":   u.LastLogin,
		"date_joined":  u.CreatedAt,
	}
}

func componentResponse(c *models.Component) gin.H {
	return gin.H{
		"id":          c.ID,
		"name":        c.Name,
		"description": c.Description,
		"category":    c.Category,
		"code":        c.Code,
		"status":      c.Status,
		"created_by":  userSummary(c.Owner),
		"created_at":  c.CreatedAt,
		"updated_at":  c.UpdatedAt,
	}
}

func componentList(items []models.Component) []gin.H {
	out := make([]gin.H, 0, len(items))
	for i := range items {
		out = append(out, componentResponse(&items[i]))
	}
	return out
}

func reviewResponse(r *models.Review) gin.H {
	return gin.H{
		"id":         r.ID,
		"component":  r.ComponentID,
		"user":       userSummary(r.User),
		"rating":     r.Rating,
		"comment":    r.Comment,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
	}
}

func notificationResponse(n *models.Notification) gin.H {
	return gin.H{
		"id":         n.ID,
		"actor":      userSummary(n.Actor),
		"verb":       n.Verb,
		"target":     n.TargetID,
		"review":     n.ReviewID,
		"message":    n.Message,
		"is_read":    n.IsRead,
		"created_at": n.CreatedAt,
	}
}

func auditResponse(a *models.AuditLog) gin.H {
	return gin.H{
		"id":           a.ID,
		"user":         userSummary(a.Actor),
		"action":       a.Action,
		"action_label": a.Action.Label(),
		"target_user":  userSummary(a.TargetUser),
		"target_model": a.TargetModel,
		"target_id":    a.TargetID,
		"description":  a.Description,
		"changes":      a.Changes,
		"ip_address":   a.IPAddress,
		"user_agent":   a.UserAgent,
		"severity":     a.Severity,
		"timestamp":    a.Timestamp,
	}
}
