package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/res"
)

// EntitlementHandler answers what the authenticated user can access.
type EntitlementHandler struct {
	entitlements service.EntitlementService
	log          *logger.Logger
}

// NewEntitlementHandler creates a new entitlement handler.
func NewEntitlementHandler(entitlements service.EntitlementService, log *logger.Logger) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements, log: log}
}

// ListAccessibleCategories returns every category id the caller may read.
func (h *EntitlementHandler) ListAccessibleCategories(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}

	categories, err := h.entitlements.ResolveAccessibleCategories(c.Request.Context(), userID)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"category_ids": categories})
}

// ListAccessiblePacks returns every pack id the caller's access derives
// from, free packs and inclusion closure included.
func (h *EntitlementHandler) ListAccessiblePacks(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}

	packs, err := h.entitlements.AccessiblePacks(c.Request.Context(), userID)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"pack_ids": packs})
}

// CheckCategoryAccess answers whether the caller may read one category.
// Denial is 403, never 404, so the reply does not leak category existence.
func (h *EntitlementHandler) CheckCategoryAccess(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	categoryID, err := uuid.Parse(c.Param("categoryId"))
	if err != nil {
		res.Error(c, domain.NewValidationError("categoryId", "must be a valid UUID"), h.log)
		return
	}

	allowed, err := h.entitlements.CanAccessCategory(c.Request.Context(), userID, categoryID)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	if !allowed {
		res.JSON(c, http.StatusForbidden, res.ErrorResponse{Error: "access to category denied"})
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"category_id": categoryID, "allowed": true})
}
