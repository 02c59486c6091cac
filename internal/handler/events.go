package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/identity"
	"github.com/graceway/engagement-engine/pkg/state"
)

type eventRequest struct {
	EventType   string  `json:"eventType"`
	AccountID   string  `json:"accountId"`
	SessionID   string  `json:"sessionId"`
	PageURL     string  `json:"pageUrl"`
	MetricValue float64 `json:"metricValue"`
	PersonaRef  string  `json:"personaRef"`
}

type stateSummary struct {
	EngagementScore int    `json:"engagementScore"`
	FunnelStage     string `json:"funnelStage"`
	PageViews       int    `json:"pageViews"`
	SessionCount    int    `json:"sessionCount"`
}

func summarize(st *state.EngagementState) stateSummary {
	return stateSummary{
		EngagementScore: st.EngagementScore,
		FunnelStage:     string(st.FunnelStage),
		PageViews:       st.PageViews,
		SessionCount:    st.SessionCount,
	}
}

// PostEvent ingests one behavioral event. The response is 202: the state
// update is done but action delivery is asynchronous from the caller's
// point of view.
func (h *Handler) PostEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ev := &event.Event{
		Identity:    identity.Identity{AccountID: req.AccountID, SessionID: req.SessionID},
		EventType:   req.EventType,
		PageURL:     req.PageURL,
		MetricValue: req.MetricValue,
		PersonaRef:  req.PersonaRef,
	}

	out, err := h.pipeline.ProcessEvent(c.Request.Context(), ev)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.Errorf("event processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	resp := gin.H{
		"eventId": out.Event.ID,
		"state":   summarize(out.State),
	}
	if out.Action != nil {
		resp["actionId"] = out.Action.ID
	}
	c.JSON(http.StatusAccepted, resp)
}
