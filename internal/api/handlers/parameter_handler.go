package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/service"
	"github.com/andresuchdata/autopo-params/internal/store"
)

type ParameterHandler struct {
	service *service.ParameterService
}

func NewParameterHandler(service *service.ParameterService) *ParameterHandler {
	return &ParameterHandler{service: service}
}

type settingsResponse struct {
	Version       uint64                     `json:"version"`
	Global        domain.GlobalParameters    `json:"global"`
	ServiceLevels []domain.ServiceLevelClass `json:"service_levels"`
	Thresholds    domain.ABCThresholds       `json:"thresholds"`
}

func newSettingsResponse(snap *domain.Snapshot) settingsResponse {
	levels := make([]domain.ServiceLevelClass, 0, len(domain.AllClasses))
	for _, c := range domain.AllClasses {
		if sl, ok := snap.ServiceLevels[c]; ok {
			levels = append(levels, sl)
		}
	}
	return settingsResponse{
		Version:       snap.Version,
		Global:        snap.Global,
		ServiceLevels: levels,
		Thresholds:    snap.Thresholds,
	}
}

// GetSnapshot returns the full configuration snapshot currently served
func (h *ParameterHandler) GetSnapshot(c *gin.Context) {
	snap := h.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"snapshot":             snap,
		"capacity_constraints": snap.CapacityConstraints(),
	})
}

// GetSettings returns the global parameters, service levels and thresholds
func (h *ParameterHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, newSettingsResponse(h.service.Snapshot()))
}

// SaveSettings validates and stores the whole settings form as one version
func (h *ParameterHandler) SaveSettings(c *gin.Context) {
	var req store.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.service.SaveSettings(c.Request.Context(), req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, newSettingsResponse(snap))
}

type globalRequest struct {
	LeadTime      *float64 `json:"lead_time" binding:"required"`
	VentanaSigmaD *int     `json:"ventana_sigma_d" binding:"required"`
}

func (h *ParameterHandler) UpdateGlobal(c *gin.Context) {
	var req globalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.service.SetGlobal(c.Request.Context(), *req.LeadTime, *req.VentanaSigmaD)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, newSettingsResponse(snap))
}

type serviceLevelRequest struct {
	ServiceLevelPct *float64 `json:"nivel_servicio_pct"`
	MaxCoverageDays *int     `json:"dias_cobertura_max" binding:"required"`
}

// UpdateServiceLevel sets the service level of one class. Omitting
// nivel_servicio_pct keeps the stored value.
func (h *ParameterHandler) UpdateServiceLevel(c *gin.Context) {
	class, err := domain.ParseClass(c.Param("class"))
	if err != nil {
		errorResponse(c, err)
		return
	}

	var req serviceLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.service.SetServiceLevel(c.Request.Context(), class, req.ServiceLevelPct, *req.MaxCoverageDays)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.ServiceLevels[class])
}

func (h *ParameterHandler) UpdateThresholds(c *gin.Context) {
	var req domain.ABCThresholds
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.service.SetThresholds(c.Request.Context(), req.A, req.B, req.C)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.Thresholds)
}

// ZScorePreview returns the z-score a service level would be stored with
func (h *ParameterHandler) ZScorePreview(c *gin.Context) {
	pct, err := strconv.ParseFloat(strings.TrimSpace(c.Query("pct")), 64)
	if err != nil || math.IsNaN(pct) || math.IsInf(pct, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pct must be a finite number"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nivel_servicio_pct": pct,
		"z_score":            h.service.ZScorePreview(pct),
	})
}

type activeRequest struct {
	Active *bool `json:"activo" binding:"required"`
}

func bindActive(c *gin.Context) (bool, bool) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return false, false
	}
	return *req.Active, true
}

// activeOrDefault treats an omitted activo as true so a new override takes
// effect without a second call.
func activeOrDefault(active *bool) bool {
	return active == nil || *active
}

type storeOverrideRequest struct {
	LeadTime domain.Override[float64] `json:"lead_time_override"`
	Coverage domain.CoverageOverrides `json:"coverage"`
	Active   *bool                    `json:"activo"`
}

func (h *ParameterHandler) ListStoreOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.StoreOverrides()})
}

func (h *ParameterHandler) PutStoreOverride(c *gin.Context) {
	var req storeOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	storeID := strings.TrimSpace(c.Param("store"))
	snap, err := h.service.UpsertStoreOverride(c.Request.Context(), domain.StoreOverride{
		StoreID:  storeID,
		LeadTime: req.LeadTime,
		Coverage: req.Coverage,
		Active:   activeOrDefault(req.Active),
	})
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.StoreOverrides[storeID])
}

func (h *ParameterHandler) SetStoreOverrideActive(c *gin.Context) {
	active, ok := bindActive(c)
	if !ok {
		return
	}

	storeID := strings.TrimSpace(c.Param("store"))
	snap, err := h.service.SetStoreOverrideActive(c.Request.Context(), storeID, active)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.StoreOverrides[storeID])
}

func (h *ParameterHandler) DeleteStoreOverride(c *gin.Context) {
	if _, err := h.service.DeleteStoreOverride(c.Request.Context(), strings.TrimSpace(c.Param("store"))); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type categoryOverrideRequest struct {
	Coverage   domain.CoverageDays `json:"coverage"`
	Perishable bool                `json:"es_perecedero"`
	Active     *bool               `json:"activo"`
}

func (h *ParameterHandler) ListCategoryOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.CategoryOverrides()})
}

func (h *ParameterHandler) PutCategoryOverride(c *gin.Context) {
	var req categoryOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	category := domain.NormalizeCategory(c.Param("category"))
	snap, err := h.service.UpsertCategoryOverride(c.Request.Context(), domain.CategoryCoverageOverride{
		Category:   category,
		Coverage:   req.Coverage,
		Perishable: req.Perishable,
		Active:     activeOrDefault(req.Active),
	})
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.CategoryOverrides[category])
}

func (h *ParameterHandler) SetCategoryOverrideActive(c *gin.Context) {
	active, ok := bindActive(c)
	if !ok {
		return
	}

	category := domain.NormalizeCategory(c.Param("category"))
	snap, err := h.service.SetCategoryOverrideActive(c.Request.Context(), category, active)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.CategoryOverrides[category])
}

func (h *ParameterHandler) DeleteCategoryOverride(c *gin.Context) {
	if _, err := h.service.DeleteCategoryOverride(c.Request.Context(), c.Param("category")); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type capacityRequest struct {
	MaxUnits        domain.Override[int]  `json:"capacidad_maxima_unidades"`
	MinDisplayUnits domain.Override[int]  `json:"minimo_exhibicion_unidades"`
	Kind            domain.ConstraintKind `json:"tipo_restriccion"`
	Active          *bool                 `json:"activo"`
}

func capacityKey(c *gin.Context) domain.CapacityKey {
	return domain.CapacityKey{
		StoreID:     strings.TrimSpace(c.Param("store")),
		ProductCode: strings.TrimSpace(c.Param("product")),
	}
}

// ListCapacityConstraints lists constraints, optionally for one store (?store=)
func (h *ParameterHandler) ListCapacityConstraints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.CapacityConstraints(strings.TrimSpace(c.Query("store")))})
}

func (h *ParameterHandler) PutCapacityConstraint(c *gin.Context) {
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key := capacityKey(c)
	snap, err := h.service.UpsertCapacityConstraint(c.Request.Context(), domain.CapacityConstraint{
		StoreID:         key.StoreID,
		ProductCode:     key.ProductCode,
		MaxUnits:        req.MaxUnits,
		MinDisplayUnits: req.MinDisplayUnits,
		Kind:            req.Kind,
		Active:          activeOrDefault(req.Active),
	})
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.Capacity[key])
}

func (h *ParameterHandler) SetCapacityConstraintActive(c *gin.Context) {
	active, ok := bindActive(c)
	if !ok {
		return
	}

	key := capacityKey(c)
	snap, err := h.service.SetCapacityConstraintActive(c.Request.Context(), key, active)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.Capacity[key])
}

func (h *ParameterHandler) DeleteCapacityConstraint(c *gin.Context) {
	if _, err := h.service.DeleteCapacityConstraint(c.Request.Context(), capacityKey(c)); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
