// Package action records triggered actions and tracks their outcome
// lifecycle until the delivery collaborator reports what became of them.
package action

import (
	"errors"
	"fmt"
	"time"

	"github.com/graceway/engagement-engine/pkg/identity"
)

// Outcome is one step of the action delivery lifecycle.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeShown     Outcome = "shown"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeClicked   Outcome = "clicked"
	OutcomeConverted Outcome = "converted"
	OutcomeExpired   Outcome = "expired"
)

// transitions is the monotonic outcome lifecycle. Anything not listed is an
// invalid transition; outcomes are never reversed.
var transitions = map[Outcome][]Outcome{
	OutcomePending: {OutcomeShown, OutcomeExpired},
	OutcomeShown:   {OutcomeDismissed, OutcomeClicked},
	OutcomeClicked: {OutcomeConverted},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Outcome) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrActionNotFound indicates the requested action doesn't exist.
	ErrActionNotFound = errors.New("action not found")

	// ErrInvalidTransition indicates an outcome change outside the
	// monotonic lifecycle.
	ErrInvalidTransition = errors.New("invalid outcome transition")

	// ErrDuplicateAction indicates an action was already created for the
	// triggering event.
	ErrDuplicateAction = errors.New("action already created for event")
)

// InvalidTransitionError builds the caller-facing error for a rejected
// outcome change.
func InvalidTransitionError(from, to Outcome) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

// Action is one triggered effect awaiting delivery. ActionConfig is a
// snapshot taken at trigger time: later rule edits never change what an
// already-triggered action will do.
type Action struct {
	ID              string                 `json:"id"`
	Identity        identity.Identity      `json:"identity"`
	RuleID          string                 `json:"ruleId"`
	ActionType      string                 `json:"actionType"`
	ActionConfig    map[string]interface{} `json:"actionConfig,omitempty"`
	MessageTemplate string                 `json:"messageTemplate,omitempty"`
	TriggerEventID  string                 `json:"triggerEventId"`
	Outcome         Outcome                `json:"outcome"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}
