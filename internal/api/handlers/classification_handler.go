package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/service"
)

type ClassificationHandler struct {
	service *service.ClassificationService
}

func NewClassificationHandler(service *service.ClassificationService) *ClassificationHandler {
	return &ClassificationHandler{service: service}
}

type classifyRequest struct {
	Scope  string `json:"scope"`
	DryRun bool   `json:"dry_run"`
}

// Run classifies trailing sales now. The body is optional.
func (h *ClassificationHandler) Run(c *gin.Context) {
	var req classifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	var scope engine.Scope
	if req.Scope != "" {
		parsed, err := engine.ParseScope(req.Scope)
		if err != nil {
			badRequest(c, err)
			return
		}
		scope = parsed
	}

	run, err := h.service.Classify(c.Request.Context(), service.ClassifyOptions{Scope: scope, DryRun: req.DryRun})
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *ClassificationHandler) LastRun(c *gin.Context) {
	run := h.service.LastRun()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no classification has run yet"})
		return
	}
	c.JSON(http.StatusOK, run)
}
