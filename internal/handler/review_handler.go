package handler

import (
	"net/http"

	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	reviews *service.ReviewService
}

func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

func (h *ReviewHandler) ListForComponent(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	reviews, summary, err := h.reviews.ListForComponent(middleware.CurrentUser(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]gin.H, 0, len(reviews))
	for i := range reviews {
		out = append(out, reviewResponse(&reviews[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews":        out,
		"count":          summary.Count,
		"average_rating": summary.Average,
	})
}

func (h *ReviewHandler) Create(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	review, err := h.reviews.Create(c.Request.Context(), middleware.CurrentUser(c), id, req.Rating, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, reviewResponse(review))
}

func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	review, err := h.reviews.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResponse(review))
}

func (h *ReviewHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	review, err := h.reviews.Update(c.Request.Context(), middleware.CurrentUser(c), id, service.ReviewUpdate{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResponse(review))
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.reviews.Delete(middleware.CurrentUser(c), id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
