package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/common"
	"github.com/graceway/engagement-engine/pkg/identity"
	"github.com/graceway/engagement-engine/pkg/rule"
	"github.com/graceway/engagement-engine/pkg/state"
)

// CreateRule inserts a new rule into the catalog.
func (h *Handler) CreateRule(c *gin.Context) {
	var r rule.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if r.ID == "" {
		r.ID = common.NewID()
	}
	r.IsActive = true

	if err := h.catalog.Create(c.Request.Context(), &r); err != nil {
		if errors.Is(err, rule.ErrDuplicateSlug) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateRule replaces an existing rule's definition. The slug is immutable.
func (h *Handler) UpdateRule(c *gin.Context) {
	var r rule.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	r.ID = c.Param("id")

	if err := h.catalog.Update(c.Request.Context(), &r); err != nil {
		if errors.Is(err, rule.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeactivateRule soft-deletes a rule: it stops matching but its slug and
// history remain.
func (h *Handler) DeactivateRule(c *gin.Context) {
	ruleID := c.Param("id")

	if err := h.catalog.Deactivate(c.Request.Context(), ruleID); err != nil {
		if errors.Is(err, rule.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		logrus.Errorf("rule deactivation failed for %s: %v", ruleID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": ruleID, "isActive": false})
}

// ListRules returns the catalog, optionally filtered by category.
func (h *Handler) ListRules(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		rules []*rule.Rule
		err   error
	)
	if categoryID := c.Query("category"); categoryID != "" {
		rules, err = h.catalog.ListByCategory(ctx, categoryID)
	} else {
		rules, err = h.catalog.List(ctx)
	}
	if err != nil {
		logrus.Errorf("rule listing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}

	version, err := h.catalog.Version(ctx)
	if err != nil {
		logrus.Errorf("catalog version lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version, "rules": rules})
}

// GenerateRules tops the category up to the configured minimum rule count.
func (h *Handler) GenerateRules(c *gin.Context) {
	res, err := h.generator.EnsureRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		logrus.Errorf("rule generation failed for category %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type stateRequest struct {
	AccountID string `json:"accountId"`
	SessionID string `json:"sessionId"`
	Stage     string `json:"stage,omitempty"`
}

func (r stateRequest) identity(c *gin.Context) (identity.Identity, bool) {
	id := identity.Identity{AccountID: r.AccountID, SessionID: r.SessionID}
	if err := id.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return identity.Identity{}, false
	}
	return id, true
}

// ResetState wipes an identity's engagement state.
func (h *Handler) ResetState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	id, ok := req.identity(c)
	if !ok {
		return
	}

	if err := h.states.Reset(c.Request.Context(), id); err != nil {
		logrus.Errorf("state reset failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// UpgradeState performs the explicit subscriber upgrade. Score never does
// this on its own.
func (h *Handler) UpgradeState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	id, ok := req.identity(c)
	if !ok {
		return
	}

	st, err := h.states.UpgradeToSubscriber(c.Request.Context(), id)
	if err != nil {
		logrus.Errorf("subscriber upgrade failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upgrade failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": summarize(st)})
}

// SetStage force-sets a funnel stage, bypassing the monotonic rule. Admin
// escape hatch only.
func (h *Handler) SetStage(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	id, ok := req.identity(c)
	if !ok {
		return
	}

	st, err := h.states.AdminSetStage(c.Request.Context(), id, state.Stage(req.Stage))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": summarize(st)})
}
