package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFinalStatusNoEvents(t *testing.T) {
	c := NewChannel(8)
	c.Close()

	_, err := FinalStatus(context.Background(), c.Reader())
	if !errors.Is(err, ErrNoStatus) {
		t.Errorf("Expected ErrNoStatus, got %v", err)
	}
	_, err = WaitMilestone(context.Background(), c.Reader(), MilestoneSlewComplete)
	if !errors.Is(err, ErrNoStatus) {
		t.Errorf("Expected ErrNoStatus from WaitMilestone, got %v", err)
	}
}

func TestFinalStatusClosedWithoutTerminal(t *testing.T) {
	c := NewChannel(8)
	c.emit(Event{Status: Pending})
	c.emit(Event{Status: Running})
	c.Close()

	ev, err := FinalStatus(context.Background(), c.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if ev.Status != Running {
		t.Errorf("Expected last event RUNNING, got %s", ev)
	}
}

func TestProducerNeverBlocks(t *testing.T) {
	c := NewChannel(16)
	r := c.Reader() // attached but never read

	start := time.Now()
	for i := 0; i < 10000; i++ {
		if _, ok := c.emit(Event{Status: Running}); !ok {
			t.Fatalf("emit %d rejected", i)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Producer took %v with an idle reader", elapsed)
	}

	if n := len(c.Events()); n != 16 {
		t.Errorf("Expected history bounded at 16, got %d", n)
	}

	// The idle reader skips to the oldest retained event.
	ev, err := r.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev.Seq != 10000-16 {
		t.Errorf("Expected lagging reader to resume at seq %d, got %d", 10000-16, ev.Seq)
	}
}

func TestReadersAreIndependent(t *testing.T) {
	c := NewChannel(8)
	c.emit(Event{Status: Pending})
	c.emit(Event{Status: Running, Milestone: MilestoneSlewComplete})

	first, err := WaitMilestone(context.Background(), c.Reader(), MilestoneSlewComplete)
	if err != nil {
		t.Fatal(err)
	}

	second := c.Reader()
	ev, err := second.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev.Seq != 0 || first.Seq != 1 {
		t.Errorf("Expected second reader to start at seq 0, got %d (first stopped at %d)", ev.Seq, first.Seq)
	}
}

func TestEmitAfterTerminalRejected(t *testing.T) {
	c := NewChannel(8)
	c.emit(Event{Status: Complete})
	if _, ok := c.emit(Event{Status: Running}); ok {
		t.Error("Expected emit after terminal to be rejected")
	}
	if !c.Closed() {
		t.Error("Expected terminal event to close the channel")
	}
}

func TestNextHonoursContext(t *testing.T) {
	c := NewChannel(8)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Reader().Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestNextWakesOnEmit(t *testing.T) {
	c := NewChannel(8)
	r := c.Reader()
	got := make(chan Event, 1)
	go func() {
		ev, err := r.Next(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	time.Sleep(10 * time.Millisecond)
	c.emit(Event{Status: Running, Note: "hello"})

	select {
	case ev := <-got:
		if ev.Note != "hello" {
			t.Errorf("Unexpected event %s", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Reader was not woken")
	}
}

func TestEvictionKeepsMilestones(t *testing.T) {
	c := NewChannel(4)
	c.emit(Event{Status: Pending})
	c.emit(Event{Status: Running})
	c.emit(Event{Status: Running, Milestone: MilestoneSlewComplete})
	for i := 0; i < 10; i++ {
		c.emit(Event{Status: Running, Note: "repointed"})
	}
	c.emit(Event{Status: Aborted, Err: ErrSuperseded})

	events := c.Events()
	if len(events) != 4 {
		t.Fatalf("Expected 4 retained events, got %d", len(events))
	}
	if events[0].Milestone != MilestoneSlewComplete || events[0].Seq != 2 {
		t.Errorf("Expected milestone retained first, got %s (seq %d)", events[0], events[0].Seq)
	}
	if last := events[len(events)-1]; last.Status != Aborted {
		t.Errorf("Expected terminal event last, got %s", last)
	}

	ev, err := FinalStatus(context.Background(), c.Reader())
	if err != nil || ev.Status != Aborted {
		t.Errorf("Expected ABORTED final status, got %s (%v)", ev, err)
	}
}
