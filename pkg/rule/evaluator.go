package rule

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/state"
)

// Match is a winning rule for one event. The pipeline turns it into an
// action and refreshes the cooldown.
type Match struct {
	Rule      *Rule
	MatchedAt time.Time
}

// Evaluator selects the single highest-priority matching, non-cooled-down
// rule for an event. First match wins; it never returns more than one.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator creates an evaluator reading through the catalog's cache.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate walks the active rules in precedence order and returns the first
// rule whose audience, trigger conditions, cooldown, and rate caps all
// pass. No match returns (nil, nil): no action is the safe default, not an
// error. A failure inside a single rule is logged and treated as a
// non-match for that rule only.
func (e *Evaluator) Evaluate(ctx context.Context, ev *event.Event, st *state.EngagementState) (*Match, error) {
	rules, err := e.catalog.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Before(st.GlobalCooldownUntil) {
		logrus.Debugf("global cooldown active for %s until %v, skipping evaluation",
			ev.Identity, st.GlobalCooldownUntil)
		return nil, nil
	}

	for _, r := range rules {
		if !r.MatchesAudience(st.FunnelStage) {
			continue
		}

		if !e.conditionsHold(r, ev, st) {
			continue
		}

		if st.RuleCooldownActive(r.ID, now) {
			logrus.Debugf("rule %s on cooldown for %s, skipping", r.ID, ev.Identity)
			continue
		}
		if r.MaxPerSession > 0 && st.SessionFireCounts[r.ID] >= r.MaxPerSession {
			logrus.Debugf("rule %s hit per-session cap for %s, skipping", r.ID, ev.Identity)
			continue
		}
		if r.MaxPerDay > 0 && st.DailyFireCounts[r.ID] >= r.MaxPerDay {
			logrus.Debugf("rule %s hit per-day cap for %s, skipping", r.ID, ev.Identity)
			continue
		}

		logrus.Infof("rule %s (slug=%s, priority=%d) matched %s event for %s",
			r.ID, r.Slug, r.Priority, ev.EventType, ev.Identity)
		return &Match{Rule: r, MatchedAt: now}, nil
	}

	return nil, nil
}

// conditionsHold evaluates the rule's predicate conjunction. Any unmet
// predicate short-circuits; a malformed predicate is logged and counts as
// unmet so one bad rule can never block the pipeline.
func (e *Evaluator) conditionsHold(r *Rule, ev *event.Event, st *state.EngagementState) bool {
	for _, p := range r.TriggerConditions {
		ok, err := p.Evaluate(ev, st)
		if err != nil {
			logrus.Errorf("rule %s predicate evaluation failed, treating as non-match: %v", r.ID, err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}
