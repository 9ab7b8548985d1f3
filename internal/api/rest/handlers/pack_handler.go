package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/req"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/res"
)

// PackHandler serves the pack catalog and its admin mutations.
type PackHandler struct {
	packs service.PackService
	log   *logger.Logger
}

// NewPackHandler creates a new pack handler.
func NewPackHandler(packs service.PackService, log *logger.Logger) *PackHandler {
	return &PackHandler{packs: packs, log: log}
}

// CreatePackRequest is the admin payload for a new pack.
type CreatePackRequest struct {
	Name         string  `json:"name" validate:"required"`
	PriceMonthly float64 `json:"price_monthly" validate:"gte=0"`
	Currency     string  `json:"currency" validate:"required,len=3"`
	IsFree       bool    `json:"is_free"`
	DisplayOrder int     `json:"display_order"`
}

// InclusionRequest names the pack granted alongside the parent pack.
type InclusionRequest struct {
	IncludesPackID string `json:"includes_pack_id" validate:"required,uuid"`
}

// LinkCategoryRequest attaches a category to a pack.
type LinkCategoryRequest struct {
	CategoryID string `json:"category_id" validate:"required,uuid"`
}

// ListPacks returns the full pack catalog.
func (h *PackHandler) ListPacks(c *gin.Context) {
	packs, err := h.packs.List(c.Request.Context())
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, packs)
}

// GetPack returns a single pack by id.
func (h *PackHandler) GetPack(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}

	pack, err := h.packs.GetByID(c.Request.Context(), id)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, pack)
}

// CreatePack creates a new pack.
func (h *PackHandler) CreatePack(c *gin.Context) {
	body, err := req.HandleBody[CreatePackRequest](c, h.log)
	if err != nil {
		return
	}

	pack, err := h.packs.Create(c.Request.Context(), domain.Pack{
		Name:         body.Name,
		PriceMonthly: body.PriceMonthly,
		Currency:     body.Currency,
		IsFree:       body.IsFree,
		DisplayOrder: body.DisplayOrder,
		IsActive:     true,
	})
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusCreated, pack)
}

// AddInclusion adds a hierarchy edge to the pack.
func (h *PackHandler) AddInclusion(c *gin.Context) {
	packID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}
	body, err := req.HandleBody[InclusionRequest](c, h.log)
	if err != nil {
		return
	}
	includesID, err := uuid.Parse(body.IncludesPackID)
	if err != nil {
		res.Error(c, domain.NewValidationError("includes_pack_id", "must be a valid UUID"), h.log)
		return
	}

	if err := h.packs.AddInclusion(c.Request.Context(), packID, includesID); err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusCreated, gin.H{"pack_id": packID, "includes_pack_id": includesID})
}

// RemoveInclusion removes a hierarchy edge from the pack.
func (h *PackHandler) RemoveInclusion(c *gin.Context) {
	packID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}
	includesID, err := uuid.Parse(c.Param("includesId"))
	if err != nil {
		res.Error(c, domain.NewValidationError("includesId", "must be a valid UUID"), h.log)
		return
	}

	if err := h.packs.RemoveInclusion(c.Request.Context(), packID, includesID); err != nil {
		res.Error(c, err, h.log)
		return
	}
	c.Status(http.StatusNoContent)
}

// LinkCategory attaches a category to the pack.
func (h *PackHandler) LinkCategory(c *gin.Context) {
	packID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}
	body, err := req.HandleBody[LinkCategoryRequest](c, h.log)
	if err != nil {
		return
	}
	categoryID, err := uuid.Parse(body.CategoryID)
	if err != nil {
		res.Error(c, domain.NewValidationError("category_id", "must be a valid UUID"), h.log)
		return
	}

	if err := h.packs.LinkCategory(c.Request.Context(), packID, categoryID); err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusCreated, gin.H{"pack_id": packID, "category_id": categoryID})
}
