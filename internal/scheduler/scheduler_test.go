package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New("not a cron spec", time.UTC); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRunOnceOrderAndErrors(t *testing.T) {
	var order []string
	step := func(name string, err error) Task {
		return Task{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}
	s, err := New("*/15 * * * *", time.UTC,
		step("refresh", nil),
		step("build", errors.New("disk full")),
		step("capture", nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "build: disk full") {
		t.Errorf("RunOnce error = %v", err)
	}
	if got := strings.Join(order, ","); got != "refresh,build,capture" {
		t.Errorf("order = %s", got)
	}
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	var ran atomic.Int32
	s, err := New("@hourly", time.UTC, Task{Name: "refresh", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if ran.Load() != 0 {
		t.Error("task ran after cancel")
	}
}

func TestStartFires(t *testing.T) {
	done := make(chan struct{}, 1)
	s, err := New("@every 1s", time.UTC, Task{Name: "tick", Run: func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	if s.Next().IsZero() {
		t.Error("Next() is zero after Start")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled task did not run")
	}
}
