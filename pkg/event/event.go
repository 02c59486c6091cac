// Package event defines the behavioral events the engine ingests and an
// append-only log of everything that was accepted. Events are write-once;
// all derived state lives in pkg/state.
package event

import (
	"errors"
	"time"

	"github.com/graceway/engagement-engine/pkg/identity"
)

// Well-known event types. Free-form types are accepted too and are matched
// only by rule predicates.
const (
	TypePageView         = "page_view"
	TypeTimeOnPage       = "time_on_page"
	TypeSessionStart     = "session_start"
	TypeChatStart        = "chat_start"
	TypeChatMessage      = "chat_message"
	TypePrayerRequest    = "prayer_request"
	TypeStudyInteraction = "study_interaction"
	TypeScrollDepth      = "scroll_depth"
)

var ErrMissingEventType = errors.New("event type is required")

// Event is an immutable behavioral event for one identity.
type Event struct {
	ID          string            `json:"id"`
	Identity    identity.Identity `json:"identity"`
	EventType   string            `json:"eventType"`
	PageURL     string            `json:"pageUrl,omitempty"`
	MetricValue float64           `json:"metricValue,omitempty"`
	PersonaRef  string            `json:"personaRef,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Validate checks the minimal shape of an incoming event.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return ErrMissingEventType
	}
	return e.Identity.Validate()
}
