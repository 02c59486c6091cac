package state

import (
	"github.com/graceway/engagement-engine/pkg/event"
)

// Score weights and caps. Each base term is capped independently before the
// event bonus is added; the final score is clamped to [0, 100].
const (
	pageViewWeight = 5
	pageViewCap    = 25

	timeOnSiteIncrementSeconds = 30
	timeOnSiteWeight           = 1
	timeOnSiteCap              = 25

	sessionWeight = 10
	sessionCap    = 30

	// MaxScore is the engagement score ceiling.
	MaxScore = 100
)

// scrollDepthBonusThreshold is the scroll percentage at or above which a
// scroll_depth event earns its bonus.
const scrollDepthBonusThreshold = 75

// eventBonus is the one-shot bonus granted by the event that is being scored.
var eventBonus = map[string]int{
	event.TypeChatStart:        20,
	event.TypeChatMessage:      5,
	event.TypePrayerRequest:    15,
	event.TypeStudyInteraction: 10,
	event.TypeScrollDepth:      5,
}

// ComputeScore maps the current counters plus the just-arrived event to a
// capped engagement score. Pure and deterministic: identical inputs always
// yield the identical score.
func ComputeScore(pageViews, timeOnSiteSeconds, sessionCount int, ev *event.Event) int {
	score := capAt(pageViews*pageViewWeight, pageViewCap)
	score += capAt(timeOnSiteSeconds/timeOnSiteIncrementSeconds*timeOnSiteWeight, timeOnSiteCap)
	score += capAt(sessionCount*sessionWeight, sessionCap)

	if ev != nil {
		if bonus, ok := eventBonus[ev.EventType]; ok {
			if ev.EventType != event.TypeScrollDepth || ev.MetricValue >= scrollDepthBonusThreshold {
				score += bonus
			}
		}
	}

	if score > MaxScore {
		return MaxScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func capAt(value, limit int) int {
	if value > limit {
		return limit
	}
	return value
}
