package transport

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPlayTickFinishesAtEnd(t *testing.T) {
	var finishes int
	tr := New(2.0, 0.7, WithOnFinished(func(State) { finishes++ }))
	tr.Play()
	tr.Tick(2100 * time.Millisecond)
	st := tr.State()
	if st.Status != Finished {
		t.Fatalf("status = %v, want finished", st.Status)
	}
	if st.Position != 2.0 {
		t.Fatalf("position = %v, want 2.0", st.Position)
	}
	if finishes != 1 {
		t.Fatalf("completion fired %d times, want 1", finishes)
	}
	tr.Tick(time.Second)
	if finishes != 1 {
		t.Fatalf("completion fired again after finishing")
	}
}

func TestSeekClamps(t *testing.T) {
	tr := New(10, 1)
	tr.Seek(-5)
	if got := tr.State().Position; got != 0 {
		t.Fatalf("seek(-5) position = %v, want 0", got)
	}
	tr.Play()
	tr.Seek(110)
	st := tr.State()
	if st.Position != 10 {
		t.Fatalf("seek past end position = %v, want 10", st.Position)
	}
	if st.Status != Playing {
		t.Fatalf("seek must not change status, got %v", st.Status)
	}
	tr.Tick(time.Millisecond)
	if got := tr.State().Status; got != Finished {
		t.Fatalf("tick at end status = %v, want finished", got)
	}
}

func TestSeekKeepsPausedStatus(t *testing.T) {
	tr := New(10, 1)
	tr.Play()
	tr.Pause()
	tr.Seek(4)
	st := tr.State()
	if st.Status != Paused || st.Position != 4 {
		t.Fatalf("got %+v, want paused at 4", st)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	for _, setup := range []func(*Transport){
		func(*Transport) {},
		func(tr *Transport) { tr.Play(); tr.Tick(time.Second) },
		func(tr *Transport) { tr.Play(); tr.Tick(time.Second); tr.Pause() },
		func(tr *Transport) { tr.Play(); tr.Tick(time.Minute) },
	} {
		tr := New(5, 0.5)
		setup(tr)
		tr.Reset()
		once := tr.State()
		tr.Reset()
		twice := tr.State()
		if once != twice {
			t.Fatalf("reset twice %+v differs from once %+v", twice, once)
		}
		if once.Status != Idle || once.Position != 0 {
			t.Fatalf("after reset got %+v", once)
		}
	}
}

func TestTickOnlyWhilePlaying(t *testing.T) {
	tr := New(5, 1)
	if tr.Tick(time.Second) {
		t.Fatal("idle transport should not advance")
	}
	tr.Play()
	tr.Tick(time.Second)
	tr.Pause()
	tr.Tick(time.Second)
	if got := tr.State().Position; got != 1 {
		t.Fatalf("position = %v, want 1", got)
	}
	tr.Play()
	tr.Tick(-time.Second)
	if got := tr.State().Position; got != 1 {
		t.Fatalf("negative tick moved position to %v", got)
	}
}

func TestIrregularTicksAccumulate(t *testing.T) {
	tr := New(60, 1)
	tr.Play()
	for _, d := range []time.Duration{100 * time.Millisecond, 16 * time.Millisecond, 3 * time.Second, 884 * time.Millisecond} {
		tr.Tick(d)
	}
	if got := tr.State().Position; got < 3.99999 || got > 4.00001 {
		t.Fatalf("position = %v, want 4", got)
	}
}

func TestPlayFromFinishedStartsNewRun(t *testing.T) {
	var finishes int
	tr := New(1, 1, WithOnFinished(func(State) { finishes++ }))
	tr.Play()
	tr.Tick(2 * time.Second)
	tr.Play()
	st := tr.State()
	if st.Status != Playing || st.Position != 0 {
		t.Fatalf("replay got %+v, want playing at 0", st)
	}
	tr.Tick(2 * time.Second)
	if finishes != 2 {
		t.Fatalf("completion fired %d times over two runs, want 2", finishes)
	}
}

func TestPlayAfterSeekBackFromFinished(t *testing.T) {
	tr := New(4, 1)
	tr.Play()
	tr.Tick(5 * time.Second)
	tr.Seek(1)
	if got := tr.State().Status; got != Finished {
		t.Fatalf("seek changed status to %v", got)
	}
	tr.Play()
	if got := tr.State().Position; got != 1 {
		t.Fatalf("position = %v, want 1", got)
	}
}

func TestLoadForcesIdleAndBumpsGeneration(t *testing.T) {
	tr := New(4, 1)
	tr.Play()
	tr.Tick(time.Second)
	g0 := tr.State().Generation
	g1 := tr.Load(8)
	st := tr.State()
	if g1 != g0+1 || st.Generation != g1 {
		t.Fatalf("generation %d -> %d", g0, g1)
	}
	if st.Status != Idle || st.Position != 0 || st.Duration != 8 {
		t.Fatalf("after load got %+v", st)
	}
}

func TestVolumeClamps(t *testing.T) {
	tr := New(1, 3)
	if got := tr.State().Volume; got != 1 {
		t.Fatalf("volume = %v, want 1", got)
	}
	tr.SetVolume(-1)
	if got := tr.State().Volume; got != 0 {
		t.Fatalf("volume = %v, want 0", got)
	}
}

func TestConcurrentTicksAndTransitions(t *testing.T) {
	var finishes atomic.Int32
	tr := New(1, 1, WithOnFinished(func(State) { finishes.Add(1) }))
	tr.Play()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Tick(time.Millisecond)
				tr.Seek(tr.State().Position)
			}
		}()
	}
	wg.Wait()
	st := tr.State()
	if st.Status != Finished || st.Position != 1 {
		t.Fatalf("got %+v, want finished at 1", st)
	}
	if finishes.Load() != 1 {
		t.Fatalf("completion fired %d times, want 1", finishes.Load())
	}
}
