package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/k8sdemo/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	var states []bool
	stop, err := Start(context.Background(), Options{
		Enabled:       false,
		ServerAddress: "http://ignored:4040",
		OnState:       func(active bool) { states = append(states, active) },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stop == nil {
		t.Fatal("stop is nil")
	}
	stop()
	stop()
	if len(states) != 1 || states[0] {
		t.Fatalf("states = %v, want [false]", states)
	}
}

func TestStart_EmptyServerAddress(t *testing.T) {
	var active = true
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{
		Enabled: true,
		AppName: "k8sdemo.probes",
		OnState: func(a bool) { active = a },
	})
	if err == nil || !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("err = %v", err)
	}
	if stop == nil {
		t.Fatal("stop is nil on error")
	}
	stop()
	if active {
		t.Fatal("reported active after failed start")
	}
}

func TestStart_NilOnState(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: true})
	if err == nil {
		t.Fatal("want error")
	}
	stop()
}
