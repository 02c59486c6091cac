// Package state maintains the derived engagement record for each identity:
// raw counters, the capped engagement score, the funnel stage, and cooldown
// timers. All mutation goes through ApplyEvent or Merge; the evaluator only
// reads.
package state

import (
	"time"
)

// Stage is the coarse lifecycle classification driving audience targeting.
type Stage string

const (
	StageVisitor    Stage = "visitor"
	StageInterested Stage = "interested"
	StageEngaged    Stage = "engaged"
	StageSubscriber Stage = "subscriber"
	StageAdvocate   Stage = "advocate"
)

// stageRank orders stages for comparisons. Higher rank = further down the funnel.
var stageRank = map[Stage]int{
	StageVisitor:    0,
	StageInterested: 1,
	StageEngaged:    2,
	StageSubscriber: 3,
	StageAdvocate:   4,
}

// Valid reports whether s names a known funnel stage.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// AtLeast reports whether s is at or beyond other in the funnel.
func (s Stage) AtLeast(other Stage) bool {
	return stageRank[s] >= stageRank[other]
}

// higherStage returns the further-progressed of two stages.
func higherStage(a, b Stage) Stage {
	if stageRank[a] >= stageRank[b] {
		return a
	}
	return b
}

// EngagementState is the per-identity engagement record. Created lazily on
// the first event; its lifecycle ends only via identity merge or an explicit
// admin reset.
type EngagementState struct {
	PageViews              int    `json:"pageViews"`
	TotalTimeOnSiteSeconds int    `json:"totalTimeOnSiteSeconds"`
	SessionCount           int    `json:"sessionCount"`
	EngagementScore        int    `json:"engagementScore"`
	FunnelStage            Stage  `json:"funnelStage"`
	PopupsShownToday       int    `json:"popupsShownToday"`
	PopupsDismissedToday   int    `json:"popupsDismissedToday"`
	PopupCounterDate       string `json:"popupCounterDate,omitempty"` // YYYY-MM-DD of the daily counters

	LastActivityAt time.Time `json:"lastActivityAt"`
	LastPageURL    string    `json:"lastPageUrl,omitempty"`
	LastPersonaRef string    `json:"lastPersonaRef,omitempty"`

	LastPopupShownAt    time.Time `json:"lastPopupShownAt,omitempty"`
	LastPopupShownType  string    `json:"lastPopupShownType,omitempty"`
	GlobalCooldownUntil time.Time `json:"globalCooldownUntil,omitempty"`

	// RuleCooldowns maps rule id to the time until which that rule may not
	// re-fire for this identity.
	RuleCooldowns map[string]time.Time `json:"ruleCooldowns,omitempty"`

	// RuleFireCounts tracks per-rule trigger totals for maxPerSession /
	// maxPerDay guards. SessionFireCounts resets on session_start,
	// DailyFireCounts rolls over with PopupCounterDate.
	SessionFireCounts map[string]int `json:"sessionFireCounts,omitempty"`
	DailyFireCounts   map[string]int `json:"dailyFireCounts,omitempty"`
}

// NewEngagementState returns the zero-value record for a first-seen identity.
func NewEngagementState(now time.Time) *EngagementState {
	return &EngagementState{
		FunnelStage:       StageVisitor,
		PopupCounterDate:  now.UTC().Format("2006-01-02"),
		LastActivityAt:    now,
		RuleCooldowns:     make(map[string]time.Time),
		SessionFireCounts: make(map[string]int),
		DailyFireCounts:   make(map[string]int),
	}
}

// ensureMaps repairs nil maps on records unmarshaled from older payloads.
func (s *EngagementState) ensureMaps() {
	if s.RuleCooldowns == nil {
		s.RuleCooldowns = make(map[string]time.Time)
	}
	if s.SessionFireCounts == nil {
		s.SessionFireCounts = make(map[string]int)
	}
	if s.DailyFireCounts == nil {
		s.DailyFireCounts = make(map[string]int)
	}
}

// RuleCooldownActive reports whether the per-rule cooldown blocks ruleID at now.
func (s *EngagementState) RuleCooldownActive(ruleID string, now time.Time) bool {
	until, ok := s.RuleCooldowns[ruleID]
	return ok && now.Before(until)
}

// SetRuleCooldown refreshes the per-rule cooldown after a trigger.
func (s *EngagementState) SetRuleCooldown(ruleID string, now time.Time, d time.Duration) {
	s.ensureMaps()
	s.RuleCooldowns[ruleID] = now.Add(d)
}
