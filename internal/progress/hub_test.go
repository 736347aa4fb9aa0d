package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// collectSink records every observed event for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *collectSink) Observe(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *collectSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage, slot string) Event {
	return Event{
		RunID: uuid.New(),
		TS:    time.Now().UTC(),
		Stage: stage,
		Slot:  slot,
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	sink := &collectSink{}
	hub := NewHub(nil, sink)

	hub.Emit(validEvent(StageChapterStart, "1"))
	hub.Emit(validEvent(StagePartVisited, "1"))
	hub.Emit(validEvent(StageChapterDone, "1"))

	require.NoError(t, hub.Close(context.Background()))

	events := sink.snapshot()
	require.Len(t, events, 3)
	require.Equal(t, StageChapterStart, events[0].Stage)
	require.Equal(t, StagePartVisited, events[1].Stage)
	require.Equal(t, StageChapterDone, events[2].Stage)
	require.True(t, sink.closed)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	sink := &collectSink{}
	hub := NewHub(nil, sink)

	hub.Emit(Event{})
	hub.Emit(Event{RunID: uuid.New(), TS: time.Now(), Stage: "BOGUS", Slot: "1"})
	hub.Emit(validEvent(StageImageDone, "1"))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 1)
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	sink := &collectSink{}
	hub := NewHub(nil, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageChapterDone, "1"))
	require.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Event) {}, wantErr: false},
		{name: "missing run id", mutate: func(e *Event) { e.RunID = uuid.Nil }, wantErr: true},
		{name: "missing timestamp", mutate: func(e *Event) { e.TS = time.Time{} }, wantErr: true},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "NOPE" }, wantErr: true},
		{name: "missing slot", mutate: func(e *Event) { e.Slot = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := validEvent(StageChapterDone, "1")
			tt.mutate(&evt)
			err := evt.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
