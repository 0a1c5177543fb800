package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingWorker struct {
	prepared *int32
	worked   *int32
}

func (w *countingWorker) Prepare() error {
	atomic.AddInt32(w.prepared, 1)
	return nil
}

func (w *countingWorker) Work(ctx context.Context) error {
	atomic.AddInt32(w.worked, 1)
	return nil
}

func (w *countingWorker) Stop() {}

func TestGroupPrepareRunsOncePerGroup(t *testing.T) {
	var prepared, worked int32
	g := &Group{
		Name:  "test",
		Count: 4,
		Sleep: 5 * time.Millisecond,
		NewInstance: func() Worker {
			return &countingWorker{prepared: &prepared, worked: &worked}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	g.Join()

	if atomic.LoadInt32(&prepared) != 1 {
		t.Fatalf("expected exactly one Prepare call across the group, got %d", prepared)
	}
	if atomic.LoadInt32(&worked) == 0 {
		t.Fatal("expected at least one Work call")
	}
}

type panickyWorker struct{}

func (panickyWorker) Prepare() error { return nil }
func (panickyWorker) Work(ctx context.Context) error {
	panic("boom")
}
func (panickyWorker) Stop() {}

func TestGroupRecoversWorkerPanic(t *testing.T) {
	g := &Group{
		Name:        "panicky",
		Count:       1,
		Sleep:       2 * time.Millisecond,
		NewInstance: func() Worker { return panickyWorker{} },
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	g.Join()
}

func TestRegistryRunsAllFunctionsDespiteErrors(t *testing.T) {
	var ran int32
	r := &Registry{
		OneTime: []OneTimeQueryFunction{
			func() error { atomic.AddInt32(&ran, 1); return context.DeadlineExceeded },
			func() error { atomic.AddInt32(&ran, 1); return nil },
		},
	}
	r.RunOneTime()
	if atomic.LoadInt32(&ran) != 2 {
		t.Fatalf("expected both one-time functions to run, got %d", ran)
	}
}
