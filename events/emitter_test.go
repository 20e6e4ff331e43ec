package events

import "testing"

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	e := NewEmitter()
	var got []Event
	e.Subscribe(EventBlockCommit, func(ev Event) { got = append(got, ev) })
	e.Subscribe(EventTxExecuted, func(ev Event) { t.Fatal("should not receive a tx_executed event") })

	e.Emit(Event{Type: EventBlockCommit, BlockHeight: 1})

	if len(got) != 1 || got[0].BlockHeight != 1 {
		t.Fatalf("expected one block_commit event at height 1, got %+v", got)
	}
}

func TestEmitRecoversFromHandlerPanic(t *testing.T) {
	e := NewEmitter()
	called := false
	e.Subscribe(EventBlockCommit, func(Event) { panic("boom") })
	e.Subscribe(EventBlockCommit, func(Event) { called = true })

	e.Emit(Event{Type: EventBlockCommit})

	if !called {
		t.Fatal("expected the second handler to still run after the first panicked")
	}
}
