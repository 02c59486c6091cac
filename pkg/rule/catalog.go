package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	rulesKey      = "engagement:rules"           // hash: rule id → json
	slugKeyPrefix = "engagement:rules:slug:"     // string: slug → rule id (uniqueness guard)
	versionKey    = "engagement:rules:version"   // counter bumped on every mutation
	categoriesKey = "engagement:categories"      // hash: category id → json
)

// Category is a node in the content category hierarchy. Rule counting for
// auto-generation includes descendant categories.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Catalog is the persistent, versioned rule set. All mutations go through
// it; it owns the read cache and invalidates it on every write.
type Catalog struct {
	client *redis.Client
	cache  *Cache
}

// NewCatalog creates a Redis-backed rule catalog with a read cache of the
// given TTL in front of it.
func NewCatalog(client *redis.Client, cacheTTL time.Duration) *Catalog {
	c := &Catalog{client: client}
	c.cache = NewCache(c.fetchActive, cacheTTL)
	return c
}

// Cache returns the catalog's read cache.
func (c *Catalog) Cache() *Cache {
	return c.cache
}

func makeSlugKey(slug string) string {
	return slugKeyPrefix + slug
}

// Create validates and persists a new rule. The slug reservation is the
// uniqueness guard: losing the reservation race surfaces as ErrDuplicateSlug
// and leaves the catalog untouched.
func (c *Catalog) Create(ctx context.Context, r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	reserved, err := c.client.SetNX(ctx, makeSlugKey(r.Slug), r.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve slug %q: %w", r.Slug, err)
	}
	if !reserved {
		return fmt.Errorf("%w: %q", ErrDuplicateSlug, r.Slug)
	}

	if err := c.writeRule(ctx, r); err != nil {
		// Release the reservation so the slug isn't orphaned.
		c.client.Del(ctx, makeSlugKey(r.Slug))
		return err
	}

	logrus.Infof("created rule %s (slug=%s, category=%s, priority=%d)", r.ID, r.Slug, r.CategoryID, r.Priority)
	return nil
}

// Update validates and persists changes to an existing rule. The slug is
// immutable after creation.
func (c *Catalog) Update(ctx context.Context, r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}

	existing, err := c.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	if existing.Slug != r.Slug {
		return fmt.Errorf("rule slug is immutable (was %q, got %q)", existing.Slug, r.Slug)
	}
	r.CreatedAt = existing.CreatedAt

	if err := c.writeRule(ctx, r); err != nil {
		return err
	}

	logrus.Infof("updated rule %s (slug=%s)", r.ID, r.Slug)
	return nil
}

// Deactivate soft-deletes a rule. The row and its slug reservation stay.
func (c *Catalog) Deactivate(ctx context.Context, ruleID string) error {
	r, err := c.Get(ctx, ruleID)
	if err != nil {
		return err
	}
	if !r.IsActive {
		return nil
	}

	r.IsActive = false
	if err := c.writeRule(ctx, r); err != nil {
		return err
	}

	logrus.Infof("deactivated rule %s (slug=%s)", r.ID, r.Slug)
	return nil
}

// writeRule persists the rule, bumps the catalog version, and invalidates
// the cache.
func (c *Catalog) writeRule(ctx context.Context, r *Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", r.ID, err)
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, rulesKey, r.ID, data)
	pipe.Incr(ctx, versionKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write rule %s: %w", r.ID, err)
	}

	c.cache.Invalidate()
	return nil
}

// Get returns a rule by id.
func (c *Catalog) Get(ctx context.Context, ruleID string) (*Rule, error) {
	data, err := c.client.HGet(ctx, rulesKey, ruleID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", ruleID, err)
	}

	var r Rule
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule %s: %w", ruleID, err)
	}
	return &r, nil
}

// SlugExists reports whether a slug is already reserved.
func (c *Catalog) SlugExists(ctx context.Context, slug string) (bool, error) {
	n, err := c.client.Exists(ctx, makeSlugKey(slug)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check slug %q: %w", slug, err)
	}
	return n > 0, nil
}

// listAll loads every rule row.
func (c *Catalog) listAll(ctx context.Context) ([]*Rule, error) {
	raw, err := c.client.HGetAll(ctx, rulesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	rules := make([]*Rule, 0, len(raw))
	for id, data := range raw {
		var r Rule
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			logrus.Warnf("skipping unreadable rule row %s: %v", id, err)
			continue
		}
		rules = append(rules, &r)
	}
	return rules, nil
}

// List returns every rule, active and inactive, in precedence order.
func (c *Catalog) List(ctx context.Context) ([]*Rule, error) {
	rules, err := c.listAll(ctx)
	if err != nil {
		return nil, err
	}
	SortByPrecedence(rules)
	return rules, nil
}

// fetchActive is the cache's refresh source: active rules in precedence order.
func (c *Catalog) fetchActive(ctx context.Context) ([]*Rule, error) {
	rules, err := c.listAll(ctx)
	if err != nil {
		return nil, err
	}

	active := rules[:0]
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	SortByPrecedence(active)
	return active, nil
}

// ActiveRules returns the active rules in precedence order, served through
// the bounded-staleness cache.
func (c *Catalog) ActiveRules(ctx context.Context) ([]*Rule, error) {
	return c.cache.ActiveRules(ctx)
}

// ListByCategory returns all rules (active and inactive) in one category,
// in precedence order.
func (c *Catalog) ListByCategory(ctx context.Context, categoryID string) ([]*Rule, error) {
	rules, err := c.listAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := rules[:0]
	for _, r := range rules {
		if r.CategoryID == categoryID {
			matched = append(matched, r)
		}
	}
	SortByPrecedence(matched)
	return matched, nil
}

// CountByCategory counts rules in a category including its descendants.
// Inactive rules count too: their slugs still exist, so regenerating over
// them would only ever collide.
func (c *Catalog) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	subtree, err := c.categorySubtree(ctx, categoryID)
	if err != nil {
		return 0, err
	}

	rules, err := c.listAll(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range rules {
		if subtree[r.CategoryID] {
			count++
		}
	}
	return count, nil
}

// SaveCategory creates or updates a category node.
func (c *Catalog) SaveCategory(ctx context.Context, cat *Category) error {
	if cat.ID == "" {
		return fmt.Errorf("category id is required")
	}

	data, err := json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("failed to marshal category %s: %w", cat.ID, err)
	}
	if err := c.client.HSet(ctx, categoriesKey, cat.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to save category %s: %w", cat.ID, err)
	}
	return nil
}

// ListCategories returns every category node.
func (c *Catalog) ListCategories(ctx context.Context) ([]*Category, error) {
	raw, err := c.client.HGetAll(ctx, categoriesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	cats := make([]*Category, 0, len(raw))
	for id, data := range raw {
		var cat Category
		if err := json.Unmarshal([]byte(data), &cat); err != nil {
			logrus.Warnf("skipping unreadable category row %s: %v", id, err)
			continue
		}
		cats = append(cats, &cat)
	}
	return cats, nil
}

// categorySubtree returns the set of category ids rooted at categoryID.
// The root is included even when it has no registered node, so generation
// works for flat deployments that never define a hierarchy.
func (c *Catalog) categorySubtree(ctx context.Context, categoryID string) (map[string]bool, error) {
	cats, err := c.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	children := make(map[string][]string)
	for _, cat := range cats {
		if cat.ParentID != "" {
			children[cat.ParentID] = append(children[cat.ParentID], cat.ID)
		}
	}

	subtree := map[string]bool{categoryID: true}
	queue := []string{categoryID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if !subtree[child] {
				subtree[child] = true
				queue = append(queue, child)
			}
		}
	}
	return subtree, nil
}

// Version returns the catalog mutation counter. Useful for diagnostics.
func (c *Catalog) Version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog version: %w", err)
	}
	return v, nil
}
