package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/service"
)

const maxBatchQueries = 5000

type ResolveHandler struct {
	service *service.ParameterService
}

func NewResolveHandler(service *service.ParameterService) *ResolveHandler {
	return &ResolveHandler{service: service}
}

type resolveRequest struct {
	StoreID     string `json:"store_id" binding:"required"`
	ProductCode string `json:"product_code"`
	Category    string `json:"category"`
	Class       string `json:"class" binding:"required"`
}

func (r resolveRequest) query() engine.Query {
	return engine.Query{
		StoreID:     strings.TrimSpace(r.StoreID),
		ProductCode: strings.TrimSpace(r.ProductCode),
		Category:    r.Category,
		Class:       domain.ABCClass(strings.ToUpper(strings.TrimSpace(r.Class))),
	}
}

// Resolve returns the effective parameters for an explicit class
func (h *ResolveHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	params, err := h.service.Resolve(c.Request.Context(), req.query())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, params)
}

// ResolveTagged resolves a product with the class from the last classification
func (h *ResolveHandler) ResolveTagged(c *gin.Context) {
	params, err := h.service.ResolveTagged(
		c.Request.Context(),
		strings.TrimSpace(c.Param("store")),
		strings.TrimSpace(c.Param("product")),
		c.Query("category"),
	)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, params)
}

type batchRequest struct {
	Queries []resolveRequest `json:"queries" binding:"required,min=1,dive"`
}

func (h *ResolveHandler) ResolveBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Queries) > maxBatchQueries {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many queries", "max": maxBatchQueries})
		return
	}

	queries := make([]engine.Query, len(req.Queries))
	for i, q := range req.Queries {
		queries[i] = q.query()
	}

	results, err := h.service.ResolveBatch(c.Request.Context(), queries)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results, "count": len(results)})
}

// SuggestOrder applies capacity limits to a raw forecast quantity
func (h *ResolveHandler) SuggestOrder(c *gin.Context) {
	var req service.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.Class = domain.ABCClass(strings.ToUpper(strings.TrimSpace(string(req.Class))))

	suggestion, err := h.service.SuggestOrder(c.Request.Context(), req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}
