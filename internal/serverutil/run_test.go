package serverutil

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type fakeRunner struct {
	startErr   error
	started    chan struct{}
	stop       chan error
	shutdownCh chan struct{}
}

func newFakeRunner(startErr error) *fakeRunner {
	return &fakeRunner{
		startErr:   startErr,
		started:    make(chan struct{}),
		stop:       make(chan error, 1),
		shutdownCh: make(chan struct{}, 1),
	}
}

func (f *fakeRunner) Start() error {
	close(f.started)
	if f.startErr != nil {
		return f.startErr
	}
	return <-f.stop
}

func (f *fakeRunner) Shutdown(context.Context) error {
	f.shutdownCh <- struct{}{}
	f.stop <- http.ErrServerClosed
	return nil
}

func TestRunReturnsStartupError(t *testing.T) {
	boom := errors.New("bind failed")
	err := Run(context.Background(), newFakeRunner(boom), time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("expected startup error, got %v", err)
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	runner := newFakeRunner(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, runner, time.Second) }()

	<-runner.started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	select {
	case <-runner.shutdownCh:
	default:
		t.Fatal("Shutdown was not invoked")
	}
}
