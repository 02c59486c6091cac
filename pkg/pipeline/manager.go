// Package pipeline ties the intake path together: an event comes in, the
// identity's engagement state is updated, the rule catalog is consulted,
// and a matching rule produces an action in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/action"
	"github.com/graceway/engagement-engine/pkg/common"
	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/identity"
	"github.com/graceway/engagement-engine/pkg/metrics"
	"github.com/graceway/engagement-engine/pkg/rule"
	"github.com/graceway/engagement-engine/pkg/state"
)

// Manager runs the event processing pipeline.
type Manager struct {
	log       *event.Log
	states    state.Store
	evaluator *rule.Evaluator
	ledger    action.Ledger
}

// NewManager wires the pipeline stages together.
func NewManager(log *event.Log, states state.Store, evaluator *rule.Evaluator, ledger action.Ledger) *Manager {
	return &Manager{log: log, states: states, evaluator: evaluator, ledger: ledger}
}

// Outcome is what one processed event produced.
type Outcome struct {
	Event  *event.Event
	State  *state.EngagementState
	Action *action.Action
}

// ProcessEvent validates and normalizes an incoming event, records it,
// folds it into the identity's engagement state, and evaluates the rule
// catalog against the result. Action creation is at-most-once and
// fire-and-forget: a failure after the state update means this event simply
// produces no action, never a retry.
func (m *Manager) ProcessEvent(ctx context.Context, ev *event.Event) (*Outcome, error) {
	scope := common.GetScopeFromContext(ctx, "pipeline.ProcessEvent")
	defer scope.Finish()
	started := time.Now()

	if ev.ID == "" {
		ev.ID = common.NewID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = started
	}
	if err := ev.Validate(); err != nil {
		metrics.EventsRejectedTotal.Inc()
		return nil, err
	}

	if err := m.log.Append(scope.Ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to record event %s: %w", ev.ID, err)
	}

	st, err := m.states.ApplyEvent(scope.Ctx, ev.Identity, ev)
	if err != nil {
		return nil, fmt.Errorf("failed to apply event %s: %w", ev.ID, err)
	}
	metrics.EventsProcessedTotal.WithLabelValues(ev.EventType).Inc()

	out := &Outcome{Event: ev, State: st}
	out.Action = m.trigger(scope.Ctx, ev, st)

	metrics.EventProcessingDuration.Observe(time.Since(started).Seconds())
	return out, nil
}

// trigger evaluates rules for the updated state and, on a match, creates
// the action and stamps the cooldown bookkeeping. Every failure here is
// logged and swallowed: the state update already happened and the contract
// for the action side is at-most-once.
func (m *Manager) trigger(ctx context.Context, ev *event.Event, st *state.EngagementState) *action.Action {
	match, err := m.evaluator.Evaluate(ctx, ev, st)
	if err != nil {
		logrus.Errorf("rule evaluation failed for event %s: %v", ev.ID, err)
		return nil
	}
	if match == nil {
		return nil
	}

	r := match.Rule
	act, err := m.ledger.Create(ctx, ev.Identity, r, ev.ID)
	if err != nil {
		if errors.Is(err, action.ErrDuplicateAction) {
			logrus.Debugf("event %s already produced an action, skipping", ev.ID)
		} else {
			logrus.Errorf("failed to create action for rule %s on event %s: %v", r.ID, ev.ID, err)
		}
		return nil
	}

	st.SetRuleCooldown(r.ID, match.MatchedAt, r.Cooldown())
	st.RecordTrigger(r.ID, r.ActionType, match.MatchedAt)
	if err := m.states.Save(ctx, ev.Identity, st); err != nil {
		// The action exists but the cooldown write lost. The rule may fire
		// again early; preferable to an action the client never sees.
		logrus.Errorf("failed to persist cooldown for rule %s on %s: %v", r.ID, ev.Identity, err)
	}

	metrics.RuleMatchesTotal.WithLabelValues(r.ID, r.ActionType).Inc()
	metrics.ActionsCreatedTotal.WithLabelValues(r.ActionType).Inc()
	logrus.Infof("rule %s (%s) fired for %s, action %s created", r.ID, r.Slug, ev.Identity, act.ID)
	return act
}

// MergeIdentity folds an anonymous session into an account: the event log
// moves under the account key and the engagement states merge.
func (m *Manager) MergeIdentity(ctx context.Context, sessionID, accountID string) (*state.EngagementState, error) {
	from := identity.ForSession(sessionID)
	to := identity.ForAccount(accountID)
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}

	if err := m.log.MoveTo(ctx, from, to); err != nil {
		return nil, fmt.Errorf("failed to move event log from %s to %s: %w", from, to, err)
	}

	st, err := m.states.Merge(ctx, sessionID, accountID)
	if err != nil {
		return nil, err
	}
	logrus.Infof("merged session %s into account %s (score=%d, stage=%s)",
		sessionID, accountID, st.EngagementScore, st.FunnelStage)
	return st, nil
}
