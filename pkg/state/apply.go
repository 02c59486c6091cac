package state

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/event"
)

// Apply folds one event into the state: counter increments for the event
// type, daily counter rollover, score recompute, stage recompute, and the
// last-seen fields. Pure in the sense that it touches nothing but the
// receiver; persistence is the store's job.
func (s *EngagementState) Apply(ev *event.Event, now time.Time) {
	s.ensureMaps()
	s.rolloverDailyCounters(now)

	switch ev.EventType {
	case event.TypePageView:
		s.PageViews++
	case event.TypeTimeOnPage:
		if ev.MetricValue > 0 {
			s.TotalTimeOnSiteSeconds += int(ev.MetricValue)
		}
	case event.TypeSessionStart:
		s.SessionCount++
		// Per-session rule caps start over with the session.
		s.SessionFireCounts = make(map[string]int)
	}

	s.EngagementScore = ComputeScore(s.PageViews, s.TotalTimeOnSiteSeconds, s.SessionCount, ev)
	s.FunnelStage = NextStage(s.FunnelStage, s.EngagementScore)

	s.LastActivityAt = now
	if ev.PageURL != "" {
		s.LastPageURL = ev.PageURL
	}
	if ev.PersonaRef != "" {
		s.LastPersonaRef = ev.PersonaRef
	}
}

// rolloverDailyCounters zeroes the daily popup counters when the UTC date
// has changed since they were last written.
func (s *EngagementState) rolloverDailyCounters(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if s.PopupCounterDate == today {
		return
	}

	if s.PopupCounterDate != "" {
		logrus.Debugf("rolling daily counters over from %s to %s", s.PopupCounterDate, today)
	}
	s.PopupCounterDate = today
	s.PopupsShownToday = 0
	s.PopupsDismissedToday = 0
	s.DailyFireCounts = make(map[string]int)
}

// RecordTrigger bumps the popup bookkeeping after a rule fires: per-rule
// session/day counts, the shown-today counter, and the last-popup fields.
func (s *EngagementState) RecordTrigger(ruleID, actionType string, now time.Time) {
	s.ensureMaps()
	s.rolloverDailyCounters(now)

	s.SessionFireCounts[ruleID]++
	s.DailyFireCounts[ruleID]++
	s.PopupsShownToday++
	s.LastPopupShownAt = now
	s.LastPopupShownType = actionType
}

// MergeFrom folds an anonymous session's state into this account state on
// login: additive counters sum, capped counters and the score take the max,
// and the funnel stage takes the higher of the two under the monotonic rule.
func (s *EngagementState) MergeFrom(sess *EngagementState, now time.Time) {
	s.ensureMaps()
	sess.ensureMaps()

	s.SessionCount += sess.SessionCount
	s.PageViews = maxInt(s.PageViews, sess.PageViews)
	s.TotalTimeOnSiteSeconds = maxInt(s.TotalTimeOnSiteSeconds, sess.TotalTimeOnSiteSeconds)
	s.EngagementScore = maxInt(s.EngagementScore, sess.EngagementScore)
	s.FunnelStage = higherStage(s.FunnelStage, sess.FunnelStage)

	if sess.LastActivityAt.After(s.LastActivityAt) {
		s.LastActivityAt = sess.LastActivityAt
		s.LastPageURL = sess.LastPageURL
		s.LastPersonaRef = sess.LastPersonaRef
	}

	// Cooldowns union toward the later expiry so a merge can never re-arm a
	// rule that either side had on cooldown.
	for ruleID, until := range sess.RuleCooldowns {
		if existing, ok := s.RuleCooldowns[ruleID]; !ok || until.After(existing) {
			s.RuleCooldowns[ruleID] = until
		}
	}
	if sess.GlobalCooldownUntil.After(s.GlobalCooldownUntil) {
		s.GlobalCooldownUntil = sess.GlobalCooldownUntil
	}

	// Daily popup counters sum only when both sides are counting the same day.
	today := now.UTC().Format("2006-01-02")
	if sess.PopupCounterDate == today {
		s.rolloverDailyCounters(now)
		s.PopupsShownToday += sess.PopupsShownToday
		s.PopupsDismissedToday += sess.PopupsDismissedToday
		for ruleID, n := range sess.DailyFireCounts {
			s.DailyFireCounts[ruleID] += n
		}
	}
	for ruleID, n := range sess.SessionFireCounts {
		s.SessionFireCounts[ruleID] += n
	}

	if sess.LastPopupShownAt.After(s.LastPopupShownAt) {
		s.LastPopupShownAt = sess.LastPopupShownAt
		s.LastPopupShownType = sess.LastPopupShownType
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
