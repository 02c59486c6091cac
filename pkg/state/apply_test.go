package state

import (
	"testing"
	"time"

	"github.com/graceway/engagement-engine/pkg/event"
)

func TestApply(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		event  *event.Event
		check  func(t *testing.T, st *EngagementState)
	}{
		{
			name:  "page view increments counter",
			event: &event.Event{EventType: event.TypePageView, PageURL: "/bible-study"},
			check: func(t *testing.T, st *EngagementState) {
				if st.PageViews != 1 {
					t.Errorf("PageViews = %d, expected 1", st.PageViews)
				}
				if st.LastPageURL != "/bible-study" {
					t.Errorf("LastPageURL = %q, expected /bible-study", st.LastPageURL)
				}
			},
		},
		{
			name:  "time on page adds seconds",
			event: &event.Event{EventType: event.TypeTimeOnPage, MetricValue: 45},
			check: func(t *testing.T, st *EngagementState) {
				if st.TotalTimeOnSiteSeconds != 45 {
					t.Errorf("TotalTimeOnSiteSeconds = %d, expected 45", st.TotalTimeOnSiteSeconds)
				}
			},
		},
		{
			name:  "session start increments session count",
			event: &event.Event{EventType: event.TypeSessionStart},
			check: func(t *testing.T, st *EngagementState) {
				if st.SessionCount != 1 {
					t.Errorf("SessionCount = %d, expected 1", st.SessionCount)
				}
			},
		},
		{
			name:  "persona ref recorded",
			event: &event.Event{EventType: event.TypeChatMessage, PersonaRef: "persona-ruth"},
			check: func(t *testing.T, st *EngagementState) {
				if st.LastPersonaRef != "persona-ruth" {
					t.Errorf("LastPersonaRef = %q, expected persona-ruth", st.LastPersonaRef)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewEngagementState(now)
			st.Apply(tt.event, now)

			if !st.LastActivityAt.Equal(now) {
				t.Errorf("LastActivityAt not updated")
			}
			tt.check(t, st)
		})
	}
}

func TestApplyScenarioScoreAndStage(t *testing.T) {
	// Identity with pageViews=10, time=600s, sessions=3; chat_start arrives.
	// Score must be 95 and the funnel stage must land on engaged.
	now := time.Now()
	st := NewEngagementState(now)
	st.PageViews = 10
	st.TotalTimeOnSiteSeconds = 600
	st.SessionCount = 3

	st.Apply(&event.Event{EventType: event.TypeChatStart}, now)

	if st.EngagementScore != 95 {
		t.Errorf("EngagementScore = %d, expected 95", st.EngagementScore)
	}
	if st.FunnelStage != StageEngaged {
		t.Errorf("FunnelStage = %s, expected %s", st.FunnelStage, StageEngaged)
	}
}

func TestApplyDeterministic(t *testing.T) {
	now := time.Now()
	ev := &event.Event{EventType: event.TypeChatMessage}

	mk := func() *EngagementState {
		st := NewEngagementState(now)
		st.PageViews = 4
		st.TotalTimeOnSiteSeconds = 120
		st.SessionCount = 2
		return st
	}

	first := mk()
	first.Apply(ev, now)
	for i := 0; i < 10; i++ {
		st := mk()
		st.Apply(ev, now)
		if st.EngagementScore != first.EngagementScore || st.FunnelStage != first.FunnelStage {
			t.Fatalf("Apply not deterministic: score %d/%s vs %d/%s",
				st.EngagementScore, st.FunnelStage, first.EngagementScore, first.FunnelStage)
		}
	}
}

func TestApplyDailyRollover(t *testing.T) {
	day1 := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)

	st := NewEngagementState(day1)
	st.RecordTrigger("rule-1", "popup", day1)
	st.PopupsDismissedToday = 2

	if st.PopupsShownToday != 1 {
		t.Fatalf("PopupsShownToday = %d, expected 1", st.PopupsShownToday)
	}

	st.Apply(&event.Event{EventType: event.TypePageView}, day2)

	if st.PopupsShownToday != 0 {
		t.Errorf("PopupsShownToday = %d after rollover, expected 0", st.PopupsShownToday)
	}
	if st.PopupsDismissedToday != 0 {
		t.Errorf("PopupsDismissedToday = %d after rollover, expected 0", st.PopupsDismissedToday)
	}
	if len(st.DailyFireCounts) != 0 {
		t.Errorf("DailyFireCounts not reset on rollover")
	}
}

func TestSessionStartResetsSessionFireCounts(t *testing.T) {
	now := time.Now()
	st := NewEngagementState(now)
	st.RecordTrigger("rule-1", "popup", now)

	st.Apply(&event.Event{EventType: event.TypeSessionStart}, now)

	if len(st.SessionFireCounts) != 0 {
		t.Errorf("SessionFireCounts not reset on session_start")
	}
}

func TestMergeFrom(t *testing.T) {
	now := time.Now()

	acct := NewEngagementState(now)
	acct.PageViews = 5
	acct.TotalTimeOnSiteSeconds = 300
	acct.SessionCount = 2
	acct.EngagementScore = 40
	acct.FunnelStage = StageSubscriber

	sess := NewEngagementState(now)
	sess.PageViews = 8
	sess.TotalTimeOnSiteSeconds = 120
	sess.SessionCount = 1
	sess.EngagementScore = 55
	sess.FunnelStage = StageEngaged
	sess.LastActivityAt = now.Add(time.Minute)
	sess.LastPageURL = "/devotional"
	sess.RuleCooldowns["rule-1"] = now.Add(time.Hour)

	acct.MergeFrom(sess, now)

	if acct.PageViews != 8 {
		t.Errorf("PageViews = %d, expected max 8", acct.PageViews)
	}
	if acct.TotalTimeOnSiteSeconds != 300 {
		t.Errorf("TotalTimeOnSiteSeconds = %d, expected max 300", acct.TotalTimeOnSiteSeconds)
	}
	if acct.SessionCount != 3 {
		t.Errorf("SessionCount = %d, expected sum 3", acct.SessionCount)
	}
	if acct.EngagementScore != 55 {
		t.Errorf("EngagementScore = %d, expected max 55", acct.EngagementScore)
	}
	// Subscriber outranks engaged; merge must not demote the account.
	if acct.FunnelStage != StageSubscriber {
		t.Errorf("FunnelStage = %s, expected %s", acct.FunnelStage, StageSubscriber)
	}
	if acct.LastPageURL != "/devotional" {
		t.Errorf("LastPageURL = %q, expected session's value", acct.LastPageURL)
	}
	if _, ok := acct.RuleCooldowns["rule-1"]; !ok {
		t.Errorf("session cooldown not carried into account state")
	}
}

func TestMergeFromTakesHigherSessionStage(t *testing.T) {
	now := time.Now()
	acct := NewEngagementState(now)
	acct.FunnelStage = StageInterested

	sess := NewEngagementState(now)
	sess.FunnelStage = StageEngaged

	acct.MergeFrom(sess, now)
	if acct.FunnelStage != StageEngaged {
		t.Errorf("FunnelStage = %s, expected %s", acct.FunnelStage, StageEngaged)
	}
}
