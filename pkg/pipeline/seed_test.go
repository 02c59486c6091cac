package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/graceway/engagement-engine/pkg/rule"
)

const seedYAML = `
categories:
  - id: cat-welcome
    name: Welcome
  - id: cat-welcome-returning
    name: Returning visitors
    parentId: cat-welcome

rules:
  - slug: seed-welcome-popup
    name: Welcome popup
    categoryId: cat-welcome
    targetAudience: visitor
    conditions:
      - kind: page_views_gte
        intValue: 1
    actionType: popup
    actionConfig:
      style: ${SEED_POPUP_STYLE:friendly}
    messageTemplate: Welcome!
    priority: 10
    cooldownSeconds: 86400
    maxPerDay: 1

  - slug: seed-return-banner
    name: Return banner
    categoryId: cat-welcome-returning
    conditions:
      - kind: session_count_gte
        intValue: 2
    actionType: banner
    priority: 20
    cooldownSeconds: 3600
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}
	return path
}

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed(writeSeedFile(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if len(seed.Categories) != 2 || len(seed.Rules) != 2 {
		t.Fatalf("seed has %d categories and %d rules, want 2 and 2", len(seed.Categories), len(seed.Rules))
	}
	if seed.Rules[0].ActionConfig["style"] != "friendly" {
		t.Errorf("env default not expanded, style = %v", seed.Rules[0].ActionConfig["style"])
	}
}

func TestLoadSeedEnvOverride(t *testing.T) {
	t.Setenv("SEED_POPUP_STYLE", "solemn")

	seed, err := LoadSeed(writeSeedFile(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if seed.Rules[0].ActionConfig["style"] != "solemn" {
		t.Errorf("env override not applied, style = %v", seed.Rules[0].ActionConfig["style"])
	}
}

func TestLoadSeedRejectsDuplicates(t *testing.T) {
	dup := `
rules:
  - slug: twice
    name: One
    categoryId: cat-a
    actionType: popup
    priority: 1
  - slug: twice
    name: Two
    categoryId: cat-a
    actionType: popup
    priority: 2
`
	if _, err := LoadSeed(writeSeedFile(t, dup)); err == nil {
		t.Error("LoadSeed() accepted duplicate slugs")
	}
}

func TestLoadSeedRejectsUnknownCategoryRef(t *testing.T) {
	bad := `
categories:
  - id: cat-a
    name: A
rules:
  - slug: orphan
    name: Orphan
    categoryId: cat-missing
    actionType: popup
    priority: 1
`
	if _, err := LoadSeed(writeSeedFile(t, bad)); err == nil {
		t.Error("LoadSeed() accepted a rule referencing an undeclared category")
	}
}

func TestApplySeedIsAdditive(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	catalog := rule.NewCatalog(client, time.Minute)
	ctx := context.Background()

	seed, err := LoadSeed(writeSeedFile(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}

	created, err := ApplySeed(ctx, catalog, seed)
	if err != nil {
		t.Fatalf("ApplySeed() error = %v", err)
	}
	if created != 2 {
		t.Errorf("first ApplySeed() created %d rules, want 2", created)
	}

	created, err = ApplySeed(ctx, catalog, seed)
	if err != nil {
		t.Fatalf("second ApplySeed() error = %v", err)
	}
	if created != 0 {
		t.Errorf("second ApplySeed() created %d rules, want 0", created)
	}

	cats, err := catalog.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 2 {
		t.Errorf("len(categories) = %d, want 2", len(cats))
	}
}
