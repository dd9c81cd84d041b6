package account

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSessionPath(t *testing.T) {
	got := SessionPath("/var/sessions", "+998991234567")
	want := filepath.Join("/var/sessions", "+998991234567")
	if got != want {
		t.Errorf("SessionPath = %q, want %q", got, want)
	}
}

func TestRemoveArtifacts(t *testing.T) {
	dir := t.TempDir()
	phone := "+998991234567"
	for _, suffix := range []string{".session", ".session-journal"} {
		path := SessionPath(dir, phone) + suffix
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}

	if !HasArtifacts(dir, phone) {
		t.Fatal("artifacts should exist before removal")
	}
	if err := RemoveArtifacts(dir, phone); err != nil {
		t.Fatalf("remove artifacts: %v", err)
	}
	if HasArtifacts(dir, phone) {
		t.Error("artifacts should be gone after removal")
	}
}

func TestRemoveArtifacts_Missing(t *testing.T) {
	if err := RemoveArtifacts(t.TempDir(), "+15551234567"); err != nil {
		t.Errorf("removing missing artifacts should not error: %v", err)
	}
}

func TestNoopDialer(t *testing.T) {
	_, err := NoopDialer{}.Dial(context.Background(), "+15551234567")
	if err == nil {
		t.Fatal("noop dialer should refuse to dial")
	}
}
