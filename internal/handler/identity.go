package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type mergeRequest struct {
	SessionID string `json:"sessionId"`
	AccountID string `json:"accountId"`
}

// MergeIdentity folds an anonymous session into an account after login.
func (h *Handler) MergeIdentity(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.SessionID == "" || req.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and accountId are both required"})
		return
	}

	st, err := h.pipeline.MergeIdentity(c.Request.Context(), req.SessionID, req.AccountID)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.Errorf("identity merge failed (%s -> %s): %v", req.SessionID, req.AccountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "merge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": summarize(st)})
}
