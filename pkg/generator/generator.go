package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/common"
	"github.com/graceway/engagement-engine/pkg/lock"
	"github.com/graceway/engagement-engine/pkg/metrics"
	"github.com/graceway/engagement-engine/pkg/rule"
)

const generationLockTTL = 30 * time.Second

// Generator tops categories up to a minimum rule count from the template
// set. Generation is serialized per category with a named lock so two
// concurrent requests never both walk the template list.
type Generator struct {
	catalog  *rule.Catalog
	locker   lock.Locker
	minRules int
}

// New returns a Generator. minRules <= 0 falls back to DefaultMinRules.
func New(catalog *rule.Catalog, locker lock.Locker, minRules int) *Generator {
	if minRules <= 0 {
		minRules = DefaultMinRules
	}
	return &Generator{catalog: catalog, locker: locker, minRules: minRules}
}

// Result reports what EnsureRules did for a category.
type Result struct {
	CategoryID string       `json:"categoryId"`
	Generated  int          `json:"generated"`
	Rules      []*rule.Rule `json:"rules"`
}

// EnsureRules brings the category's subtree up to the minimum rule count.
// It holds the category's generation lock for the duration; a losing racer
// blocks on the lock and then sees the winner's rules, so the top-up is
// idempotent.
func (g *Generator) EnsureRules(ctx context.Context, categoryID string) (*Result, error) {
	if categoryID == "" {
		return nil, fmt.Errorf("category id is required")
	}

	held, err := g.locker.Acquire(ctx, "rulegen:"+categoryID, generationLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire generation lock for category %s: %w", categoryID, err)
	}
	defer held.Release(context.Background())

	count, err := g.catalog.CountByCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	generated := 0
	if count < g.minRules {
		generated, err = g.generate(ctx, categoryID, g.minRules-count)
		if err != nil {
			return nil, err
		}
	}

	rules, err := g.catalog.ListByCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	if generated > 0 {
		metrics.RulesGeneratedTotal.WithLabelValues(categoryID).Add(float64(generated))
		logrus.Infof("generated %d rules for category %s (now %d total)", generated, categoryID, count+generated)
	}
	return &Result{CategoryID: categoryID, Generated: generated, Rules: rules}, nil
}

// generate inserts up to deficit rules from templates whose slug is not yet
// taken in this category. Duplicate-slug failures are benign: another
// process materialized the same template between our existence check and the
// insert.
func (g *Generator) generate(ctx context.Context, categoryID string, deficit int) (int, error) {
	inserted := 0
	seq := 1
	for _, tmpl := range Templates {
		if inserted >= deficit {
			break
		}

		slug := tmpl.Slug(categoryID)
		exists, err := g.catalog.SlugExists(ctx, slug)
		if err != nil {
			return inserted, err
		}
		if exists {
			seq++
			continue
		}

		r := tmpl.materialize(categoryID, seq)
		if err := g.catalog.Create(ctx, r); err != nil {
			if errors.Is(err, rule.ErrDuplicateSlug) {
				logrus.Debugf("slug %s taken by a concurrent generator, skipping", slug)
				seq++
				continue
			}
			return inserted, fmt.Errorf("failed to create generated rule %s: %w", slug, err)
		}
		inserted++
		seq++
	}
	return inserted, nil
}

// materialize stamps the template into a concrete rule for the category.
func (t Template) materialize(categoryID string, seq int) *rule.Rule {
	conditions := make([]rule.Predicate, len(t.Conditions))
	copy(conditions, t.Conditions)

	cfg := make(map[string]interface{}, len(t.ActionConfig))
	for k, v := range t.ActionConfig {
		cfg[k] = v
	}

	return &rule.Rule{
		ID:                common.NewID(),
		Slug:              t.Slug(categoryID),
		Name:              fmt.Sprintf("%s #%d", t.Name, seq),
		CategoryID:        categoryID,
		TargetAudience:    t.TargetAudience,
		TriggerConditions: conditions,
		ActionType:        t.ActionType,
		ActionConfig:      cfg,
		MessageTemplate:   t.MessageTemplate,
		Priority:          t.Priority,
		CooldownSeconds:   t.CooldownSeconds,
		MaxPerSession:     t.MaxPerSession,
		MaxPerDay:         t.MaxPerDay,
		IsActive:          true,
		CreatedAt:         time.Now(),
	}
}
