package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRefresher struct{ calls atomic.Int32 }

func (f *fakeRefresher) RefreshAll(ctx context.Context) (CycleStats, error) {
	f.calls.Add(1)
	return CycleStats{}, nil
}

type fakeCleaner struct{ calls atomic.Int32 }

func (f *fakeCleaner) Sweep(ctx context.Context, retention time.Duration, batchSize int) (map[string]int, error) {
	f.calls.Add(1)
	return map[string]int{}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within a second")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestScheduler_RunsEnabledJobs(t *testing.T) {
	ref := &fakeRefresher{}
	cln := &fakeCleaner{}

	s := NewScheduler(SchedulerConfig{
		RefreshEnabled:  true,
		CleanupEnabled:  true,
		RefreshInterval: 10 * time.Millisecond,
		CleanupOffset:   5 * time.Millisecond,
	}, ref, cln, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool { return ref.calls.Load() >= 2 && cln.calls.Load() >= 2 })

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestScheduler_DisabledJobsNeverRun(t *testing.T) {
	ref := &fakeRefresher{}
	cln := &fakeCleaner{}

	s := NewScheduler(SchedulerConfig{
		RefreshInterval: 5 * time.Millisecond,
	}, ref, cln, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if ref.calls.Load() != 0 || cln.calls.Load() != 0 {
		t.Errorf("calls = %d/%d, want none with both jobs disabled", ref.calls.Load(), cln.calls.Load())
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, &fakeRefresher{}, &fakeCleaner{}, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start failed: %v", err)
	}
}
