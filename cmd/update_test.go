package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironverse/guardian/internal/models"
	"github.com/ironverse/guardian/internal/reference"
	"github.com/ironverse/guardian/internal/testutil"
)

func TestUpdateReferenceBootstrap(t *testing.T) {
	remote := testutil.NewTempRemoteRepo(t)
	remote.CreateFile("ops/enforce.yml", "name: enforce\n")
	remote.Commit("Add enforcement workflow")

	refDir := t.TempDir()
	setupTestConfig(t, remote, refDir)
	updateRemove = nil

	if err := runUpdate(updateCmd, []string{"ops/enforce.yml"}); err != nil {
		t.Fatalf("update-reference failed: %v", err)
	}

	store, err := reference.Load(refDir)
	if err != nil {
		t.Fatalf("failed to load written store: %v", err)
	}
	entry, ok := store.Lookup("ops/enforce.yml")
	if !ok {
		t.Fatal("registered path missing from store")
	}
	if string(entry.Content) != "name: enforce\n" {
		t.Errorf("store content %q does not match repository head", entry.Content)
	}
	if entry.Hash != models.HashBytes([]byte("name: enforce\n")) {
		t.Error("store hash does not match content")
	}
}

func TestUpdateReferenceRefresh(t *testing.T) {
	remote := testutil.NewTempRemoteRepo(t)
	remote.CreateFile("ops/enforce.yml", "name: enforce\n")
	remote.Commit("Add enforcement workflow")

	refDir := t.TempDir()
	testutil.WriteReferenceStore(t, refDir, map[string]string{"ops/enforce.yml": "name: enforce\n"})
	setupTestConfig(t, remote, refDir)
	updateRemove = nil

	// The approved change lands in the repository first, then the operator
	// refreshes the store to match.
	remote.CreateFile("ops/enforce.yml", "name: enforce\non: push\n")
	remote.Commit("Extend enforcement workflow")

	if err := runUpdate(updateCmd, nil); err != nil {
		t.Fatalf("update-reference failed: %v", err)
	}

	store, err := reference.Load(refDir)
	if err != nil {
		t.Fatalf("failed to load refreshed store: %v", err)
	}
	entry, _ := store.Lookup("ops/enforce.yml")
	if string(entry.Content) != "name: enforce\non: push\n" {
		t.Errorf("store not refreshed, got %q", entry.Content)
	}
}

func TestUpdateReferenceRemove(t *testing.T) {
	remote := testutil.NewTempRemoteRepo(t)
	remote.CreateFile("ops/enforce.yml", "name: enforce\n")
	remote.CreateFile("ops/rules.yml", "rules: []\n")
	remote.Commit("Add workflows")

	refDir := t.TempDir()
	testutil.WriteReferenceStore(t, refDir, map[string]string{
		"ops/enforce.yml": "name: enforce\n",
		"ops/rules.yml":   "rules: []\n",
	})
	setupTestConfig(t, remote, refDir)
	updateRemove = []string{"ops/rules.yml"}
	defer func() { updateRemove = nil }()

	if err := runUpdate(updateCmd, nil); err != nil {
		t.Fatalf("update-reference failed: %v", err)
	}

	store, err := reference.Load(refDir)
	if err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	if _, ok := store.Lookup("ops/rules.yml"); ok {
		t.Error("removed path still in store")
	}
	if _, ok := store.Lookup("ops/enforce.yml"); !ok {
		t.Error("remaining path dropped from store")
	}
}

func TestUpdateReferenceRefusesUnreadableRegistry(t *testing.T) {
	remote := testutil.NewTempRemoteRepo(t)
	remote.CreateFile("ops/enforce.yml", "name: enforce\n")
	remote.Commit("Add enforcement workflow")

	refDir := t.TempDir()
	testutil.WriteReferenceStore(t, refDir, map[string]string{"ops/enforce.yml": "name: enforce\n"})
	setupTestConfig(t, remote, refDir)
	updateRemove = nil

	// The registry exists but fails verification. Even with explicit paths
	// this must not be treated as a bootstrap and overwritten.
	corrupt := filepath.Join(refDir, "content", "ops", "enforce.yml")
	if err := os.WriteFile(corrupt, []byte("tampered reference\n"), 0o644); err != nil {
		t.Fatalf("failed to corrupt reference content: %v", err)
	}

	if err := runUpdate(updateCmd, []string{"ops/enforce.yml"}); err == nil {
		t.Fatal("expected refusal to overwrite an unreadable registry")
	}

	// The broken store is left as evidence for the operator.
	got, err := os.ReadFile(corrupt)
	if err != nil {
		t.Fatalf("failed to re-read content file: %v", err)
	}
	if string(got) != "tampered reference\n" {
		t.Error("unreadable registry was overwritten")
	}
}

func TestUpdateReferenceRefusesEmptyRegistry(t *testing.T) {
	remote := testutil.NewTempRemoteRepo(t)
	remote.CreateFile("ops/enforce.yml", "name: enforce\n")
	remote.Commit("Add enforcement workflow")

	refDir := t.TempDir()
	testutil.WriteReferenceStore(t, refDir, map[string]string{"ops/enforce.yml": "name: enforce\n"})
	setupTestConfig(t, remote, refDir)
	updateRemove = []string{"ops/enforce.yml"}
	defer func() { updateRemove = nil }()

	if err := runUpdate(updateCmd, nil); err == nil {
		t.Fatal("expected refusal to write an empty registry")
	}
}
