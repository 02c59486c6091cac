// Package rule holds the versioned engagement rule catalog, the bounded
// staleness cache in front of it, and the first-match evaluator that turns
// an event plus engagement state into at most one triggered rule.
package rule

import (
	"sort"
	"time"

	"github.com/graceway/engagement-engine/pkg/state"
)

// Audience selects which funnel stages a rule targets.
const (
	AudienceAll        = "all"
	AudienceVisitor    = "visitor"
	AudienceSubscriber = "subscriber"
)

// Action types a rule can emit.
const (
	ActionTypePopup        = "popup"
	ActionTypeBanner       = "banner"
	ActionTypeChatPrompt   = "chat_prompt"
	ActionTypeNotification = "notification"
)

// Rule is a declarative trigger/action mapping evaluated per event.
// "Deleting" a rule is always a soft deactivation; rows are never removed.
type Rule struct {
	ID                string                 `json:"id"`
	Slug              string                 `json:"slug"`
	Name              string                 `json:"name"`
	CategoryID        string                 `json:"categoryId"`
	TargetAudience    string                 `json:"targetAudience"`         // all | visitor | subscriber
	TargetStages      []string               `json:"targetStages,omitempty"` // explicit stage list, overrides TargetAudience
	TriggerConditions []Predicate            `json:"triggerConditions"`
	ActionType        string                 `json:"actionType"`
	ActionConfig      map[string]interface{} `json:"actionConfig,omitempty"`
	MessageTemplate   string                 `json:"messageTemplate,omitempty"`
	Priority          int                    `json:"priority"` // ascending = higher precedence
	CooldownSeconds   int                    `json:"cooldownSeconds"`
	MaxPerSession     int                    `json:"maxPerSession"` // 0 = unlimited
	MaxPerDay         int                    `json:"maxPerDay"`     // 0 = unlimited
	IsActive          bool                   `json:"isActive"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// Cooldown returns the per-identity re-fire interval.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// MatchesAudience reports whether a funnel stage falls inside the rule's
// target audience. An explicit stage list wins over the named audiences.
func (r *Rule) MatchesAudience(stage state.Stage) bool {
	if len(r.TargetStages) > 0 {
		for _, s := range r.TargetStages {
			if state.Stage(s) == stage {
				return true
			}
		}
		return false
	}

	switch r.TargetAudience {
	case AudienceAll, "":
		return true
	case AudienceVisitor:
		return stage == state.StageVisitor || stage == state.StageInterested
	case AudienceSubscriber:
		return stage == state.StageEngaged || stage == state.StageSubscriber || stage == state.StageAdvocate
	default:
		return false
	}
}

// SortByPrecedence orders rules by (priority ascending, createdAt ascending,
// id ascending). The id tie-break keeps the order a strict total order even
// for rules created in the same instant.
func SortByPrecedence(rules []*Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}
