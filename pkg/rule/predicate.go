package rule

import (
	"fmt"
	"strings"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/state"
)

// Kind names one predicate variant. Each kind carries exactly one of the
// value fields on Predicate; the dispatch table below is the single source
// of truth for which kinds exist, so validation and evaluation can never
// drift apart.
type Kind string

const (
	KindEventTypeEquals    Kind = "event_type_equals"
	KindPageURLEquals      Kind = "page_url_equals"
	KindPageURLContains    Kind = "page_url_contains"
	KindPageViewsGTE       Kind = "page_views_gte"
	KindTimeOnSiteGTE      Kind = "time_on_site_gte"
	KindEngagementScoreGTE Kind = "engagement_score_gte"
	KindEngagementScoreLTE Kind = "engagement_score_lte"
	KindSessionCountGTE    Kind = "session_count_gte"
	KindMetricValueGTE     Kind = "metric_value_gte"
	KindPersonaEquals      Kind = "persona_equals"
	KindPopupsTodayLT      Kind = "popups_today_lt"
)

// Predicate is one condition in a rule's trigger set. All predicates of a
// rule must hold for the rule to match.
type Predicate struct {
	Kind        Kind    `json:"kind"`
	StringValue string  `json:"stringValue,omitempty"`
	IntValue    int     `json:"intValue,omitempty"`
	FloatValue  float64 `json:"floatValue,omitempty"`
}

type predicateSpec struct {
	wantsString bool
	wantsInt    bool
	wantsFloat  bool
	eval        func(p Predicate, ev *event.Event, st *state.EngagementState) bool
}

// predicates is the dispatch table: evaluation and admin-boundary
// validation both walk it, making unknown kinds impossible to sneak past.
var predicates = map[Kind]predicateSpec{
	KindEventTypeEquals: {
		wantsString: true,
		eval: func(p Predicate, ev *event.Event, _ *state.EngagementState) bool {
			return ev.EventType == p.StringValue
		},
	},
	KindPageURLEquals: {
		wantsString: true,
		eval: func(p Predicate, ev *event.Event, _ *state.EngagementState) bool {
			return ev.PageURL == p.StringValue
		},
	},
	KindPageURLContains: {
		wantsString: true,
		eval: func(p Predicate, ev *event.Event, _ *state.EngagementState) bool {
			return p.StringValue != "" && strings.Contains(ev.PageURL, p.StringValue)
		},
	},
	KindPageViewsGTE: {
		wantsInt: true,
		eval: func(p Predicate, _ *event.Event, st *state.EngagementState) bool {
			return st.PageViews >= p.IntValue
		},
	},
	KindTimeOnSiteGTE: {
		wantsInt: true,
		eval: func(p Predicate, _ *event.Event, st *state.EngagementState) bool {
			return st.TotalTimeOnSiteSeconds >= p.IntValue
		},
	},
	KindEngagementScoreGTE: {
		wantsInt: true,
		eval: func(p Predicate, _ *event.Event, st *state.EngagementState) bool {
			return st.EngagementScore >= p.IntValue
		},
	},
	KindEngagementScoreLTE: {
		wantsInt: true,
		eval: func(p Predicate, _ *event.Event, st *state.EngagementState) bool {
			return st.EngagementScore <= p.IntValue
		},
	},
	KindSessionCountGTE: {
		wantsInt: true,
		eval: func(p Predicate, _ *event.Event, st *state.EngagementState) bool {
			return st.SessionCount >= p.IntValue
		},
	},
	KindMetricValueGTE: {
		wantsFloat: true,
		eval: func(p Predicate, ev *event.Event, _ *state.EngagementState) bool {
			return ev.MetricValue >= p.FloatValue
		},
	},
	KindPersonaEquals: {
		wantsString: true,
		eval: func(p Predicate, ev *event.Event, st *state.EngagementState) bool {
			if ev.PersonaRef != "" {
				return ev.PersonaRef == p.StringValue
			}
			return st.LastPersonaRef == p.StringValue
		},
	},
	KindPopupsTodayLT: {
		wantsInt: true,
		eval: func(p Predicate, _ *event.Event, st *state.EngagementState) bool {
			return st.PopupsShownToday < p.IntValue
		},
	},
}

// Evaluate checks the predicate against an event and its state. An unknown
// kind is an error so the evaluator can log it and count the rule as a
// non-match rather than silently passing.
func (p Predicate) Evaluate(ev *event.Event, st *state.EngagementState) (bool, error) {
	spec, ok := predicates[p.Kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPredicate, p.Kind)
	}
	return spec.eval(p, ev, st), nil
}

// Validate checks a predicate at the admin boundary: the kind must be known
// and the value the kind expects must be present and sensible. Unknown
// predicate keys are rejected here, never silently ignored.
func (p Predicate) Validate() error {
	spec, ok := predicates[p.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPredicate, p.Kind)
	}

	switch {
	case spec.wantsString && p.StringValue == "":
		return fmt.Errorf("predicate %q requires a string value", p.Kind)
	case spec.wantsInt && p.IntValue < 0:
		return fmt.Errorf("predicate %q requires a non-negative integer threshold, got %d", p.Kind, p.IntValue)
	case spec.wantsFloat && p.FloatValue < 0:
		return fmt.Errorf("predicate %q requires a non-negative numeric threshold, got %v", p.Kind, p.FloatValue)
	}
	return nil
}

// ValidateRule checks a whole rule before persistence: audience, action
// type shape, priority, and every predicate.
func ValidateRule(r *Rule) error {
	if r.Slug == "" {
		return fmt.Errorf("rule slug is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.CategoryID == "" {
		return fmt.Errorf("rule category is required")
	}

	switch r.TargetAudience {
	case AudienceAll, AudienceVisitor, AudienceSubscriber, "":
	default:
		return fmt.Errorf("unknown target audience %q", r.TargetAudience)
	}
	for _, s := range r.TargetStages {
		if !state.Stage(s).Valid() {
			return fmt.Errorf("unknown funnel stage %q in target stages", s)
		}
	}

	switch r.ActionType {
	case ActionTypePopup, ActionTypeBanner, ActionTypeChatPrompt, ActionTypeNotification:
	default:
		return fmt.Errorf("unknown action type %q", r.ActionType)
	}

	if r.CooldownSeconds < 0 {
		return fmt.Errorf("cooldownSeconds must be non-negative, got %d", r.CooldownSeconds)
	}
	if r.MaxPerSession < 0 || r.MaxPerDay < 0 {
		return fmt.Errorf("per-session and per-day caps must be non-negative")
	}

	for i, p := range r.TriggerConditions {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("trigger condition %d: %w", i, err)
		}
	}
	return nil
}
