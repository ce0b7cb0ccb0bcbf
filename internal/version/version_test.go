package version_test

import (
	"strings"
	"testing"

	v "github.com/keithlinneman/k8sdemo/internal/version"
)

func TestVCSDirtyTriState(t *testing.T) {
	// test binaries carry no vcs settings, so the ldflags value survives
	t.Cleanup(func() { v.VCSDirty = nil })

	v.VCSDirty = nil
	if got := v.Get().Dirty(); got != "unknown" {
		t.Fatalf("Dirty() = %q, want unknown", got)
	}

	trueVal := true
	v.VCSDirty = &trueVal
	if got := v.Get().Dirty(); got != "true" {
		t.Fatalf("Dirty() = %q, want true", got)
	}

	falseVal := false
	v.VCSDirty = &falseVal
	if got := v.Get().Dirty(); got != "false" {
		t.Fatalf("Dirty() = %q, want false", got)
	}
}

func TestGet_FillsGoVersion(t *testing.T) {
	if v.Get().GoVersion == "" {
		t.Fatal("GoVersion should come from build info")
	}
}

func TestInfo_String(t *testing.T) {
	i := v.Info{Version: "1.0.0", Commit: "abc123", GoVersion: "go1.24"}
	s := i.String()
	for _, want := range []string{"1.0.0", "commit=abc123", "go=go1.24", "dirty=unknown"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
