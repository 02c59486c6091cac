// Package generator keeps every content category stocked with a minimum
// number of engagement rules, materialized from a fixed template set under a
// per-category named lock.
package generator

import (
	"fmt"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/rule"
)

// DefaultMinRules is the rule count every category is topped up to.
const DefaultMinRules = 10

// Template is one parameterized rule blueprint. Slugs derive
// deterministically from (category, template key) so concurrent generation
// passes collide on the slug reservation instead of duplicating rules.
type Template struct {
	Key             string
	Name            string
	TargetAudience  string
	Conditions      []rule.Predicate
	ActionType      string
	ActionConfig    map[string]interface{}
	MessageTemplate string
	Priority        int
	CooldownSeconds int
	MaxPerSession   int
	MaxPerDay       int
}

// Slug returns the deterministic slug for this template in a category.
func (t Template) Slug(categoryID string) string {
	return fmt.Sprintf("%s-%s", categoryID, t.Key)
}

// Templates is the fixed generation set, in priority order.
var Templates = []Template{
	{
		Key:            "first-visit-welcome",
		Name:           "First Visit Welcome",
		TargetAudience: rule.AudienceVisitor,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEventTypeEquals, StringValue: event.TypePageView},
			{Kind: rule.KindPageViewsGTE, IntValue: 1},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypePopup,
		ActionConfig:    map[string]interface{}{"style": "welcome", "delaySeconds": 5},
		MessageTemplate: "Welcome! Would you like a quick tour of what's here?",
		Priority:        10,
		CooldownSeconds: 86400,
		MaxPerDay:       1,
	},
	{
		Key:            "deep-engagement",
		Name:           "Deep Engagement Invitation",
		TargetAudience: rule.AudienceAll,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEngagementScoreGTE, IntValue: 60},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypeChatPrompt,
		ActionConfig:    map[string]interface{}{"style": "invitation"},
		MessageTemplate: "You've been exploring deeply. Want to talk it through together?",
		Priority:        20,
		CooldownSeconds: 43200,
		MaxPerDay:       1,
	},
	{
		Key:            "return-visitor",
		Name:           "Return Visitor Greeting",
		TargetAudience: rule.AudienceVisitor,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEventTypeEquals, StringValue: event.TypeSessionStart},
			{Kind: rule.KindSessionCountGTE, IntValue: 2},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypeBanner,
		ActionConfig:    map[string]interface{}{"style": "greeting"},
		MessageTemplate: "Good to see you again. Pick up where you left off?",
		Priority:        30,
		CooldownSeconds: 86400,
		MaxPerDay:       1,
	},
	{
		Key:            "milestone",
		Name:           "Engagement Milestone",
		TargetAudience: rule.AudienceAll,
		Conditions: []rule.Predicate{
			{Kind: rule.KindPageViewsGTE, IntValue: 10},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypeNotification,
		ActionConfig:    map[string]interface{}{"style": "celebration"},
		MessageTemplate: "You've read quite a lot. Here's a milestone worth marking.",
		Priority:        40,
		CooldownSeconds: 604800,
		MaxPerDay:       1,
	},
	{
		Key:            "re-engagement",
		Name:           "Re-engagement Nudge",
		TargetAudience: rule.AudienceVisitor,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEngagementScoreLTE, IntValue: 20},
			{Kind: rule.KindTimeOnSiteGTE, IntValue: 120},
			{Kind: rule.KindPopupsTodayLT, IntValue: 2},
		},
		ActionType:      rule.ActionTypePopup,
		ActionConfig:    map[string]interface{}{"style": "nudge"},
		MessageTemplate: "Not sure where to start? Here are a few good first steps.",
		Priority:        50,
		CooldownSeconds: 86400,
		MaxPerDay:       1,
	},
	{
		Key:            "community-invite",
		Name:           "Community Invitation",
		TargetAudience: rule.AudienceSubscriber,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEngagementScoreGTE, IntValue: 50},
			{Kind: rule.KindPopupsTodayLT, IntValue: 2},
		},
		ActionType:      rule.ActionTypePopup,
		ActionConfig:    map[string]interface{}{"style": "community"},
		MessageTemplate: "Others are walking this same road. Join the conversation?",
		Priority:        60,
		CooldownSeconds: 259200,
		MaxPerDay:       1,
	},
	{
		Key:            "recommendation",
		Name:           "Content Recommendation",
		TargetAudience: rule.AudienceAll,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEventTypeEquals, StringValue: event.TypeScrollDepth},
			{Kind: rule.KindMetricValueGTE, FloatValue: 75},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypeBanner,
		ActionConfig:    map[string]interface{}{"style": "recommendation"},
		MessageTemplate: "Since you finished this one, you might appreciate what comes next.",
		Priority:        70,
		CooldownSeconds: 21600,
		MaxPerSession:   1,
	},
	{
		Key:            "learning-path",
		Name:           "Learning Path Suggestion",
		TargetAudience: rule.AudienceAll,
		Conditions: []rule.Predicate{
			{Kind: rule.KindEventTypeEquals, StringValue: event.TypeStudyInteraction},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypeChatPrompt,
		ActionConfig:    map[string]interface{}{"style": "learning-path"},
		MessageTemplate: "Want a structured path through this topic?",
		Priority:        80,
		CooldownSeconds: 86400,
		MaxPerDay:       2,
	},
	{
		Key:            "feedback-request",
		Name:           "Feedback Request",
		TargetAudience: rule.AudienceSubscriber,
		Conditions: []rule.Predicate{
			{Kind: rule.KindSessionCountGTE, IntValue: 5},
			{Kind: rule.KindPopupsTodayLT, IntValue: 1},
		},
		ActionType:      rule.ActionTypePopup,
		ActionConfig:    map[string]interface{}{"style": "feedback"},
		MessageTemplate: "You know this place well by now. How could it serve you better?",
		Priority:        90,
		CooldownSeconds: 1209600,
		MaxPerDay:       1,
	},
	{
		Key:            "quick-tip",
		Name:           "Quick Tip",
		TargetAudience: rule.AudienceAll,
		Conditions: []rule.Predicate{
			{Kind: rule.KindTimeOnSiteGTE, IntValue: 300},
			{Kind: rule.KindPopupsTodayLT, IntValue: 3},
		},
		ActionType:      rule.ActionTypeNotification,
		ActionConfig:    map[string]interface{}{"style": "tip"},
		MessageTemplate: "Tip: you can save anything you read to revisit later.",
		Priority:        100,
		CooldownSeconds: 43200,
		MaxPerSession:   1,
	},
}
