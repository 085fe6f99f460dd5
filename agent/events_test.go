package agent

import "testing"

func TestEventEmitterDelivers(t *testing.T) {
	e := NewEventEmitter("s1", 4)
	e.Emit(EventTurnStart, map[string]any{"message": "hi"})
	e.Close()

	var got []Event
	for evt := range e.Events() {
		got = append(got, evt)
	}
	if len(got) != 1 || got[0].Kind != EventTurnStart || got[0].SessionID != "s1" {
		t.Errorf("events = %+v", got)
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s1", 2)
	for i := 0; i < 10; i++ {
		e.Emit(EventRound, nil) // must not block
	}
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 buffered events, got %d", count)
	}
}

func TestEventEmitterCloseIsIdempotent(t *testing.T) {
	e := NewEventEmitter("s1", 1)
	e.Close()
	e.Close()
	e.Emit(EventError, nil) // dropped, no panic
}
