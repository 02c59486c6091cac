// Package handler exposes the engine over HTTP for the delivery
// collaborator (event intake, action polling, outcome reporting) and for
// operators (rule administration, state administration).
package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/graceway/engagement-engine/pkg/action"
	"github.com/graceway/engagement-engine/pkg/generator"
	"github.com/graceway/engagement-engine/pkg/pipeline"
	"github.com/graceway/engagement-engine/pkg/rule"
	"github.com/graceway/engagement-engine/pkg/state"
)

// Handler holds the HTTP surface's collaborators.
type Handler struct {
	pipeline  *pipeline.Manager
	states    state.Store
	ledger    action.Ledger
	catalog   *rule.Catalog
	generator *generator.Generator
	health    *state.HealthChecker
	expiryAge time.Duration
}

// New creates the handler set.
func New(
	pl *pipeline.Manager,
	states state.Store,
	ledger action.Ledger,
	catalog *rule.Catalog,
	gen *generator.Generator,
	health *state.HealthChecker,
	expiryAge time.Duration,
) *Handler {
	if expiryAge <= 0 {
		expiryAge = action.DefaultExpiryAge
	}
	return &Handler{
		pipeline:  pl,
		states:    states,
		ledger:    ledger,
		catalog:   catalog,
		generator: gen,
		health:    health,
		expiryAge: expiryAge,
	}
}

// RegisterRoutes mounts every endpoint on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	{
		v1.POST("/events", h.PostEvent)
		v1.GET("/actions/next", h.NextAction)
		v1.POST("/actions/:id/shown", h.outcomeHandler(action.OutcomeShown))
		v1.POST("/actions/:id/dismissed", h.outcomeHandler(action.OutcomeDismissed))
		v1.POST("/actions/:id/clicked", h.outcomeHandler(action.OutcomeClicked))
		v1.POST("/actions/:id/converted", h.outcomeHandler(action.OutcomeConverted))
		v1.POST("/actions/sweep", h.SweepActions)
		v1.POST("/identity/merge", h.MergeIdentity)
	}

	admin := v1.Group("/admin")
	{
		admin.POST("/rules", h.CreateRule)
		admin.PUT("/rules/:id", h.UpdateRule)
		admin.DELETE("/rules/:id", h.DeactivateRule)
		admin.GET("/rules", h.ListRules)
		admin.POST("/categories/:id/generate", h.GenerateRules)
		admin.POST("/state/reset", h.ResetState)
		admin.POST("/state/upgrade", h.UpgradeState)
		admin.POST("/state/stage", h.SetStage)
	}
}
