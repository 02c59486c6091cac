package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/action"
	"github.com/graceway/engagement-engine/pkg/identity"
)

// identityFromQuery builds an Identity from accountId/sessionId query
// parameters and validates it.
func identityFromQuery(c *gin.Context) (identity.Identity, bool) {
	id := identity.Identity{
		AccountID: c.Query("accountId"),
		SessionID: c.Query("sessionId"),
	}
	if err := id.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return identity.Identity{}, false
	}
	return id, true
}

// NextAction returns the identity's most recent pending action, or 204 if
// there is nothing to deliver.
func (h *Handler) NextAction(c *gin.Context) {
	id, ok := identityFromQuery(c)
	if !ok {
		return
	}

	act, err := h.ledger.NextPending(c.Request.Context(), id)
	if err != nil {
		logrus.Errorf("next pending lookup failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "action lookup failed"})
		return
	}
	if act == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, act)
}

// outcomeHandler builds the handler for one outcome transition endpoint.
func (h *Handler) outcomeHandler(outcome action.Outcome) gin.HandlerFunc {
	return func(c *gin.Context) {
		actionID := c.Param("id")

		act, err := h.ledger.SetOutcome(c.Request.Context(), actionID, outcome)
		if err != nil {
			switch {
			case errors.Is(err, action.ErrActionNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
			case errors.Is(err, action.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				logrus.Errorf("outcome update failed for action %s: %v", actionID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "outcome update failed"})
			}
			return
		}
		c.JSON(http.StatusOK, act)
	}
}

// SweepActions expires stale pending actions. Scheduling is external; an
// operator or cron hits this endpoint.
func (h *Handler) SweepActions(c *gin.Context) {
	swept, err := h.ledger.SweepExpired(c.Request.Context(), h.expiryAge)
	if err != nil {
		logrus.Errorf("action sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": swept})
}
