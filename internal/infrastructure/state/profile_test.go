package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newProfile(t *testing.T) (*ProfileStore, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := NewProfileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProfileStore: %v", err)
	}
	return p, dir
}

func TestProfile_UpdateAndRender(t *testing.T) {
	p, _ := newProfile(t)

	line, err := p.Update("preferences", "editor", "helix")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if line != "Synchronized: preferences.editor = helix" {
		t.Errorf("confirmation = %q", line)
	}

	ctx := p.ContextString()
	if !strings.Contains(ctx, "## Preferences:") || !strings.Contains(ctx, "- editor: helix") {
		t.Errorf("profile render wrong:\n%s", ctx)
	}
}

func TestProfile_KeyRemap(t *testing.T) {
	p, _ := newProfile(t)

	line, _ := p.Update("misc", "wife", "Dana")
	if line != "Synchronized: relationships.wife = Dana" {
		t.Errorf("wife should land in relationships: %q", line)
	}
	line, _ = p.Update("stuff", "vehicle", "an old Volvo")
	if line != "Synchronized: assets.car = an old Volvo" {
		t.Errorf("vehicle should land in assets.car: %q", line)
	}
}

func TestProfile_Delete(t *testing.T) {
	p, _ := newProfile(t)
	p.Update("assets", "car", "Volvo")

	line, err := p.Delete("assets", "car")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if line != "Removed from Profile: assets.car" {
		t.Errorf("confirmation = %q", line)
	}

	line, _ = p.Delete("assets", "car")
	if !strings.Contains(line, "not found") {
		t.Errorf("second delete should report missing key: %q", line)
	}
}

func TestProfile_PersistsAcrossInstances(t *testing.T) {
	p, dir := newProfile(t)
	p.Update("interests", "science", "astronomy")

	reloaded, err := NewProfileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reloaded.ContextString(), "astronomy") {
		t.Error("profile not persisted")
	}
}

func TestProfile_CorruptFileFallsBack(t *testing.T) {
	p, dir := newProfile(t)
	os.WriteFile(filepath.Join(dir, profileFile), []byte("not json"), 0644)

	doc := p.Load()
	if _, exists := doc["root"]; !exists {
		t.Error("corrupt file should load as the default profile")
	}
}
