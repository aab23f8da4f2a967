package handler

import (
	"net/http"
	"strings"

	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	users *service.UserService
}

func NewAdminHandler(users *service.UserService) *AdminHandler {
	return &AdminHandler{users: users}
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ListUsers supports ?role=, ?is_active= and ?search=
// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var filter repository.UserFilter
	if raw := c.Query("role"); raw != "" {
		role := service.ParseRole(raw)
		filter.Role = &role
	}
	if raw := c.Query("is_active"); raw != "" {
		active := strings.EqualFold(raw, "true")
		filter.IsActive = &active
	}
	filter.Search = c.Query("search")

	users, err := h.users.ListUsers(middleware.CurrentUser(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}

// ChangeRole PATCH /api/admin/users/:id/role
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	admin := middleware.CurrentUser(c)
	user, err := h.users.ChangeRole(admin, requestMeta(c), id, service.ParseRole(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}

	logger.Log.Info("Admin changed user role",
		zap.String("admin_id", admin.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	c.JSON(http.StatusOK, userResponse(user))
}

// SetActive PATCH /api/admin/users/:id/active
func (h *AdminHandler) SetActive(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	user, err := h.users.SetActive(middleware.CurrentUser(c), requestMeta(c), id, *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// DeleteUser DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteUser(middleware.CurrentUser(c), requestMeta(c), id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Activity GET /api/admin/users/:id/activity
func (h *AdminHandler) Activity(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := intQuery(c, "page_size", repository.DefaultAuditPageSize)
	if !ok {
		return
	}

	result, err := h.users.Activity(middleware.CurrentUser(c), id, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, auditPage(result))
}

func auditPage(p *repository.AuditPage) gin.H {
	logs := make([]gin.H, 0, len(p.Logs))
	for i := range p.Logs {
		logs = append(logs, auditResponse(&p.Logs[i]))
	}
	return gin.H{
		"count":     p.Total,
		"page":      p.Page,
		"page_size": p.PageSize,
		"results":   logs,
	}
}

