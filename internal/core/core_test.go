package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"
)

type recorder struct {
	log []string
}

func (r *recorder) hook(name string, startErr error) Hook {
	return Hook{
		OnStart: func() error {
			r.log = append(r.log, "start "+name)
			return startErr
		},
		OnStop: func(context.Context) error {
			r.log = append(r.log, "stop "+name)
			return nil
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	a := NewApp(quietLogger())
	a.Add("a", r.hook("a", nil))
	a.Add("b", r.hook("b", nil))
	a.Add("inert", struct{}{})
	a.Add("c", StopFunc(func(context.Context) error {
		r.log = append(r.log, "stop c")
		return nil
	}))

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.Stop()
	a.Stop()

	want := []string{"start a", "start b", "stop c", "stop b", "stop a"}
	if !slices.Equal(r.log, want) {
		t.Errorf("log = %v, want %v", r.log, want)
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	boom := errors.New("boom")
	a := NewApp(quietLogger())
	a.Add("a", r.hook("a", nil))
	a.Add("b", r.hook("b", boom))
	a.Add("c", r.hook("c", nil))

	err := a.Start()
	if !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want boom", err)
	}
	want := []string{"start a", "start b", "stop a"}
	if !slices.Equal(r.log, want) {
		t.Errorf("log = %v, want %v", r.log, want)
	}
}

func TestApp_RunStopsOnContext(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	a := NewApp(quietLogger())
	a.Add("a", r.hook("a", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"start a", "stop a"}; !slices.Equal(r.log, want) {
		t.Errorf("log = %v, want %v", r.log, want)
	}
}

func TestApp_RunIgnoresStopError(t *testing.T) {
	t.Parallel()
	a := NewApp(quietLogger())
	a.Add("flaky", StopFunc(func(context.Context) error { return errors.New("close failed") }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil after a stop error", err)
	}
}

func TestStartFunc(t *testing.T) {
	t.Parallel()
	called := false
	var s Starter = StartFunc(func() error { called = true; return nil })
	if err := s.Start(); err != nil || !called {
		t.Errorf("StartFunc: called=%v err=%v", called, err)
	}
	if err := (Hook{}).Stop(context.Background()); err != nil {
		t.Errorf("empty Hook.Stop = %v", err)
	}
}
