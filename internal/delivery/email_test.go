package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
)

type fakeAggregationStore struct {
	staged []models.EmailAggregation
	err    error
	calls  int
}

func (f *fakeAggregationStore) Stage(_ context.Context, rows []models.EmailAggregation) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.staged = append(f.staged, rows...)
	return nil
}

func TestEmailProcessorStagesOncePerEvent(t *testing.T) {
	store := &fakeAggregationStore{}
	proc, err := NewEmailProcessor(EmailProcessorParams{Logger: newTestLogger(), Store: store})
	if err != nil {
		t.Fatalf("NewEmailProcessor: %v", err)
	}

	event := testEvent()
	event.Events = []EventPayload{
		{Payload: json.RawMessage(`{"n":1}`)},
		{Payload: json.RawMessage(`{"n":2}`)},
	}
	endpoints := []models.Endpoint{
		endpointOfType(enums.EndpointTypeEmailSubscription),
		endpointOfType(enums.EndpointTypeEmailSubscription),
	}

	histories := proc.Process(context.Background(), event, endpoints)

	if store.calls != 1 {
		t.Fatalf("staging must happen once per event, got %d calls", store.calls)
	}
	if len(store.staged) != 2 {
		t.Fatalf("expected 2 staged rows, got %d", len(store.staged))
	}
	for _, row := range store.staged {
		if row.OrgID != event.OrgID || row.Bundle != event.Bundle || row.Application != event.Application {
			t.Fatalf("staged row carries wrong key: %+v", row)
		}
	}
	if len(histories) != 2 {
		t.Fatalf("expected one history per endpoint, got %d", len(histories))
	}
	for _, history := range histories {
		if !history.InvocationResult {
			t.Fatal("expected success histories")
		}
	}
}

func TestEmailProcessorReportsStagingFailure(t *testing.T) {
	store := &fakeAggregationStore{err: errors.New("insert failed")}
	proc, err := NewEmailProcessor(EmailProcessorParams{Logger: newTestLogger(), Store: store})
	if err != nil {
		t.Fatalf("NewEmailProcessor: %v", err)
	}

	histories := proc.Process(context.Background(), testEvent(), []models.Endpoint{
		endpointOfType(enums.EndpointTypeEmailSubscription),
	})

	if len(histories) != 1 {
		t.Fatalf("expected 1 history, got %d", len(histories))
	}
	if histories[0].InvocationResult {
		t.Fatal("staging failure must produce a failure history")
	}
}
