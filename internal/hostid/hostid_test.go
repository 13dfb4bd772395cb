package hostid

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/witnz/rowdiff/internal/storage"
)

type brokenMetadata struct{}

func (brokenMetadata) GetMetadata(string) (string, error) { return "", errors.New("io error") }
func (brokenMetadata) SetMetadata(string, string) error  { return nil }

func TestResolve(t *testing.T) {
	r := &Resolver{
		Hostname: func() (string, error) { return "web-01", nil },
		NewUUID:  func() string { return "11111111-2222-3333-4444-555555555555" },
	}

	tests := []struct {
		name    string
		setting string
		want    string
		wantErr bool
	}{
		{"default is hostname", "", "web-01", false},
		{"hostname", "hostname", "web-01", false},
		{"custom", "custom:edge-7", "edge-7", false},
		{"empty custom", "custom:", "", true},
		{"unknown", "mac", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.setting, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v", tt.setting, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("hostname failure", func(t *testing.T) {
		broken := &Resolver{Hostname: func() (string, error) { return "", errors.New("no name") }}
		if _, err := broken.Resolve("hostname", nil); err == nil {
			t.Error("Expected error")
		}
	})
}

func TestResolveUUIDPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowdiff.db")
	store, err := storage.New(path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	first, err := Resolve(SourceUUID, store)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("Expected a valid uuid, got %q", first)
	}
	store.Close()

	store, err = storage.New(path)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer store.Close()

	second, err := Resolve(SourceUUID, store)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected uuid to survive restart, got %s then %s", first, second)
	}
}

func TestResolveUUIDErrors(t *testing.T) {
	if _, err := Resolve(SourceUUID, nil); err == nil {
		t.Error("Expected error without metadata")
	}
	if _, err := Resolve(SourceUUID, brokenMetadata{}); err == nil {
		t.Error("Expected error when metadata read fails")
	}
}
