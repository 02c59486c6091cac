package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/graceway/engagement-engine/pkg/common"
	"github.com/graceway/engagement-engine/pkg/rule"
)

// Seed is the startup rule seed file. Seeding is additive: a seed rule
// whose slug already exists in the catalog is left alone, so operators can
// edit live rules without the next restart clobbering them.
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
	Rules      []SeedRule     `yaml:"rules"`
}

// SeedCategory declares a rule category, optionally nested.
type SeedCategory struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	ParentID string `yaml:"parentId,omitempty"`
}

// SeedRule is one rule entry in the seed file.
type SeedRule struct {
	Slug            string                 `yaml:"slug"`
	Name            string                 `yaml:"name"`
	CategoryID      string                 `yaml:"categoryId"`
	TargetAudience  string                 `yaml:"targetAudience,omitempty"`
	TargetStages    []string               `yaml:"targetStages,omitempty"`
	Conditions      []SeedCondition        `yaml:"conditions,omitempty"`
	ActionType      string                 `yaml:"actionType"`
	ActionConfig    map[string]interface{} `yaml:"actionConfig,omitempty"`
	MessageTemplate string                 `yaml:"messageTemplate,omitempty"`
	Priority        int                    `yaml:"priority"`
	CooldownSeconds int                    `yaml:"cooldownSeconds,omitempty"`
	MaxPerSession   int                    `yaml:"maxPerSession,omitempty"`
	MaxPerDay       int                    `yaml:"maxPerDay,omitempty"`
}

// SeedCondition is one trigger predicate in the seed file.
type SeedCondition struct {
	Kind        string  `yaml:"kind"`
	StringValue string  `yaml:"stringValue,omitempty"`
	IntValue    int     `yaml:"intValue,omitempty"`
	FloatValue  float64 `yaml:"floatValue,omitempty"`
}

// LoadSeed reads and parses a YAML seed file.
// Supports environment variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var seed Seed
	if err := yaml.Unmarshal([]byte(expanded), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML seed: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &seed, nil
}

// Validate catches duplicate slugs and rules pointing at categories the
// seed never declares.
func (s *Seed) Validate() error {
	catIDs := make(map[string]bool)
	for _, c := range s.Categories {
		if c.ID == "" {
			return fmt.Errorf("category with empty ID found")
		}
		if catIDs[c.ID] {
			return fmt.Errorf("duplicate category ID: %s", c.ID)
		}
		catIDs[c.ID] = true
	}

	slugs := make(map[string]bool)
	for _, r := range s.Rules {
		if r.Slug == "" {
			return fmt.Errorf("rule with empty slug found")
		}
		if slugs[r.Slug] {
			return fmt.Errorf("duplicate rule slug: %s", r.Slug)
		}
		slugs[r.Slug] = true

		if r.CategoryID != "" && len(catIDs) > 0 && !catIDs[r.CategoryID] {
			return fmt.Errorf("rule %s references unknown category: %s", r.Slug, r.CategoryID)
		}
	}
	return nil
}

// ApplySeed upserts the seed's categories and creates any seed rule whose
// slug is not yet in the catalog. Returns the number of rules created.
func ApplySeed(ctx context.Context, catalog *rule.Catalog, seed *Seed) (int, error) {
	for _, c := range seed.Categories {
		if err := catalog.SaveCategory(ctx, &rule.Category{ID: c.ID, Name: c.Name, ParentID: c.ParentID}); err != nil {
			return 0, fmt.Errorf("failed to save category %s: %w", c.ID, err)
		}
	}

	created := 0
	for _, sr := range seed.Rules {
		exists, err := catalog.SlugExists(ctx, sr.Slug)
		if err != nil {
			return created, err
		}
		if exists {
			logrus.Debugf("seed rule %s already present, skipping", sr.Slug)
			continue
		}

		if err := catalog.Create(ctx, sr.toRule()); err != nil {
			return created, fmt.Errorf("failed to create seed rule %s: %w", sr.Slug, err)
		}
		created++
	}

	if created > 0 {
		logrus.Infof("seeded %d rules from config", created)
	}
	return created, nil
}

func (sr SeedRule) toRule() *rule.Rule {
	conditions := make([]rule.Predicate, 0, len(sr.Conditions))
	for _, c := range sr.Conditions {
		conditions = append(conditions, rule.Predicate{
			Kind:        rule.Kind(c.Kind),
			StringValue: c.StringValue,
			IntValue:    c.IntValue,
			FloatValue:  c.FloatValue,
		})
	}

	return &rule.Rule{
		ID:                common.NewID(),
		Slug:              sr.Slug,
		Name:              sr.Name,
		CategoryID:        sr.CategoryID,
		TargetAudience:    sr.TargetAudience,
		TargetStages:      sr.TargetStages,
		TriggerConditions: conditions,
		ActionType:        sr.ActionType,
		ActionConfig:      sr.ActionConfig,
		MessageTemplate:   sr.MessageTemplate,
		Priority:          sr.Priority,
		CooldownSeconds:   sr.CooldownSeconds,
		MaxPerSession:     sr.MaxPerSession,
		MaxPerDay:         sr.MaxPerDay,
		IsActive:          true,
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) == 2 {
			defaultValue = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}
