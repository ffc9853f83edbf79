package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrNotFound, "fetch", "download", "no content for item", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "fetch: download: no content for item") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrTransient, "fetch", "download", "", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "batch", "submit", "scheduler unreachable", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Wrap(ErrNotFound, "fetch", "download", "", nil), true},
		{Wrap(ErrValidation, "collect", "extract", "", nil), true},
		{Wrap(ErrConfiguration, "batch", "submit", "", nil), true},
		{Wrap(ErrTimeout, "collect", "status", "", nil), false},
		{Wrap(ErrTransient, "fetch", "download", "", nil), false},
		{Wrap(ErrExternalTool, "batch", "submit", "", nil), false},
	}
	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKind(t *testing.T) {
	if got := Kind(Wrap(ErrDiskFull, "fetch", "intake", "", nil)); got != "disk_full" {
		t.Fatalf("Kind = %q, want disk_full", got)
	}
	if got := Kind(errors.New("plain")); got != "transient" {
		t.Fatalf("Kind = %q, want transient", got)
	}
	if got := Kind(nil); got != "" {
		t.Fatalf("Kind(nil) = %q, want empty", got)
	}
}
