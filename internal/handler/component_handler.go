package handler

import (
	"net/http"

	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
)

type ComponentHandler struct {
	components *service.ComponentService
}

func NewComponentHandler(components *service.ComponentService) *ComponentHandler {
	return &ComponentHandler{components: components}
}

type ComponentRequest struct {
	Name        string                   `json:"name" binding:"required,max=100"`
	Description string                   `json:"description"`
	Category    models.ComponentCategory `json:"category" binding:"required"`
	Code        string                   `json:"code" binding:"required"`
}

type DecisionRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

func (r ComponentRequest) input() service.ComponentInput {
	return service.ComponentInput{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Code:        r.Code,
	}
}

// List returns approved components, optionally filtered by ?category= and ?search=
func (h *ComponentHandler) List(c *gin.Context) {
	items, err := h.components.ListApproved(c.Query("category"), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, componentList(items))
}

func (h *ComponentHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	component, err := h.components.Get(middleware.CurrentUser(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, componentResponse(component))
}

func (h *ComponentHandler) Create(c *gin.Context) {
	var req ComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	component, err := h.components.Create(middleware.CurrentUser(c), req.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, componentResponse(component))
}

func (h *ComponentHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req ComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	component, err := h.components.Update(middleware.CurrentUser(c), id, req.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, componentResponse(component))
}

func (h *ComponentHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.components.Delete(middleware.CurrentUser(c), requestMeta(c), id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ComponentHandler) Mine(c *gin.Context) {
	items, err := h.components.ListOwn(middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, componentList(items))
}

func (h *ComponentHandler) Submit(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	component, err := h.components.Submit(c.Request.Context(), middleware.CurrentUser(c), requestMeta(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "component submitted for review",
		"component": componentResponse(component),
	})
}

// Review applies {"action": "approve"|"reject", "reason": "..."}
func (h *ComponentHandler) Review(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	component, err := h.components.Decide(
		c.Request.Context(),
		middleware.CurrentUser(c),
		requestMeta(c),
		id,
		service.Decision(req.Action),
		req.Reason,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "component " + string(component.Status),
		"component": componentResponse(component),
	})
}

func (h *ComponentHandler) Pending(c *gin.Context) {
	items, err := h.components.ListPending(middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, componentList(items))
}

func (h *ComponentHandler) Stats(c *gin.Context) {
	stats, err := h.components.Stats(middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ComponentHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, models.Categories())
}
