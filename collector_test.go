package loom

import (
	"fmt"
	"testing"
	"time"
)

func testEvent(spanID string) *Event {
	ev := newEvent(nil)
	ev.AddField(FieldSpanID, spanID)
	return ev
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test-collector", 100)
	defer collector.Close()

	if collector.Name() != "test-collector" {
		t.Errorf("Expected collector name preserved, got %q", collector.Name())
	}
	if collector.Count() != 0 {
		t.Errorf("Expected 0 events initially, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped events initially, got %d", collector.DroppedCount())
	}
}

func TestCollectorBasicCollection(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true) // Enable sync for deterministic testing.
	defer collector.Close()

	collector.Send(testEvent("span-1"))

	// No sleep needed - synchronous.
	if collector.Count() != 1 {
		t.Errorf("Expected 1 event, got %d", collector.Count())
	}

	events := collector.Export()
	if len(events) != 1 {
		t.Fatalf("Expected 1 exported event, got %d", len(events))
	}
	if events[0].Fields()[FieldSpanID] != "span-1" {
		t.Errorf("Expected span id 'span-1', got %v", events[0].Fields()[FieldSpanID])
	}

	// After export, collector should be empty.
	if collector.Count() != 0 {
		t.Errorf("Expected 0 events after export, got %d", collector.Count())
	}
}

func TestCollectorSnapshotsFields(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	ev := testEvent("span-1")
	collector.Send(ev)

	// Mutations after delivery must not reach the buffered copy.
	ev.AddField("late", true)

	events := collector.Export()
	if _, ok := events[0].Fields()["late"]; ok {
		t.Error("Expected the buffered event to be isolated from later mutation")
	}
}

func TestCollectorExportPreservesOrder(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	for i := 0; i < 5; i++ {
		collector.Send(testEvent(fmt.Sprintf("span-%d", i)))
	}

	events := collector.Export()
	if len(events) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		want := fmt.Sprintf("span-%d", i)
		if ev.Fields()[FieldSpanID] != want {
			t.Errorf("Expected %s at position %d, got %v", want, i, ev.Fields()[FieldSpanID])
		}
	}
}

func TestCollectorExportEmpty(t *testing.T) {
	collector := NewCollector("test", 10)
	defer collector.Close()

	if events := collector.Export(); events != nil {
		t.Errorf("Expected nil export from an empty collector, got %v", events)
	}
}

func TestCollectorBackpressure(t *testing.T) {
	// Small buffer to trigger backpressure quickly.
	collector := NewCollector("test", 2)
	defer collector.Close()

	// Fill the channel beyond capacity.
	for i := 0; i < 10; i++ {
		collector.Send(testEvent("span"))
	}

	// Give time for async processing and dropping.
	time.Sleep(50 * time.Millisecond)

	droppedCount := collector.DroppedCount()
	if droppedCount == 0 {
		t.Error("Expected some events to be dropped due to backpressure")
	}

	t.Logf("Dropped %d events due to backpressure (expected behavior)", droppedCount)
}

func TestCollectorNilEventDropped(t *testing.T) {
	collector := NewCollector("test", 10)
	defer collector.Close()

	collector.Send(nil)

	if collector.DroppedCount() != 1 {
		t.Errorf("Expected a nil event counted as dropped, got %d", collector.DroppedCount())
	}
}

func TestCollectorReset(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	collector.Send(testEvent("span-1"))
	collector.Send(nil) // bump the drop counter

	collector.Reset()

	if collector.Count() != 0 {
		t.Errorf("Expected 0 events after reset, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped after reset, got %d", collector.DroppedCount())
	}
}

func TestCollectorAsyncDelivery(t *testing.T) {
	collector := NewCollector("test", 100)
	defer collector.Close()

	for i := 0; i < 10; i++ {
		collector.Send(testEvent(fmt.Sprintf("span-%d", i)))
	}

	// The intake loop runs on its own goroutine; poll briefly.
	deadline := time.After(2 * time.Second)
	for collector.Count() < 10 {
		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for intake, have %d events", collector.Count())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCollectorCloseDrainsIntake(t *testing.T) {
	collector := NewCollector("test", 100)

	for i := 0; i < 20; i++ {
		collector.Send(testEvent(fmt.Sprintf("span-%d", i)))
	}

	collector.Close()

	if got := collector.Count(); got != 20 {
		t.Errorf("Expected close to drain queued events, got %d", got)
	}
}

func TestCollectorCloseIdempotent(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.Close()
	collector.Close() // second close must not panic
}

func TestCollectorRejectsAfterCloseInSyncMode(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	collector.Close()

	collector.Send(testEvent("span-1"))

	if collector.Count() != 0 {
		t.Errorf("Expected no buffering after close, got %d", collector.Count())
	}
	if collector.DroppedCount() != 1 {
		t.Errorf("Expected the post-close event counted dropped, got %d", collector.DroppedCount())
	}
}
