package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acuevasp/hookrelay/pkg/config"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
}

func fastPolicy(maxRetries int) config.DeliveryConfig {
	return config.DeliveryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
}

func newWebhookProcessor(t *testing.T, policy config.DeliveryConfig) *WebhookProcessor {
	t.Helper()
	proc, err := NewWebhookProcessor(WebhookProcessorParams{
		Logger: newTestLogger(),
		Policy: policy,
	})
	if err != nil {
		t.Fatalf("NewWebhookProcessor: %v", err)
	}
	return proc
}

func testEvent() Event {
	return Event{
		ID:          uuid.New(),
		OrgID:       "org-1",
		Bundle:      "commerce",
		Application: "orders",
		EventType:   "order.created",
		Timestamp:   time.Now().UTC(),
		Events:      []EventPayload{{Payload: json.RawMessage(`{"orderId":"o-1"}`)}},
	}
}

func webhookEndpoint(url string) models.Endpoint {
	return models.Endpoint{
		ID:      uuid.New(),
		OrgID:   "org-1",
		Name:    "hook",
		Type:    enums.EndpointTypeWebhook,
		Enabled: true,
		URL:     url,
		Method:  http.MethodPost,
	}
}

func TestWebhookRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	proc := newWebhookProcessor(t, fastPolicy(3))
	histories := proc.Process(context.Background(), testEvent(), []models.Endpoint{webhookEndpoint(server.URL)})

	if len(histories) != 1 {
		t.Fatalf("expected 1 history, got %d", len(histories))
	}
	if !histories[0].InvocationResult {
		t.Fatalf("expected success after retries, details: %s", histories[0].Details)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if histories[0].Details != nil {
		t.Fatalf("success history should carry no details, got %s", histories[0].Details)
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"malformed payload"}`))
	}))
	defer server.Close()

	proc := newWebhookProcessor(t, fastPolicy(3))
	histories := proc.Process(context.Background(), testEvent(), []models.Endpoint{webhookEndpoint(server.URL)})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("client error must not be retried, got %d attempts", got)
	}
	if histories[0].InvocationResult {
		t.Fatal("expected failure history")
	}

	var details Details
	if err := json.Unmarshal(histories[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if details.Code == nil || *details.Code != http.StatusBadRequest {
		t.Fatalf("expected code 400 in details, got %+v", details)
	}
	if details.ResponseBody != `{"error":"malformed payload"}` {
		t.Fatalf("unexpected response body: %q", details.ResponseBody)
	}
}

func TestWebhookExhaustsRetryBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	proc := newWebhookProcessor(t, fastPolicy(2))
	histories := proc.Process(context.Background(), testEvent(), []models.Endpoint{webhookEndpoint(server.URL)})

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected maxRetries+1 = 3 attempts, got %d", got)
	}
	if histories[0].InvocationResult {
		t.Fatal("expected failure after budget exhaustion")
	}

	var details Details
	if err := json.Unmarshal(histories[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if details.Code == nil || *details.Code != http.StatusInternalServerError {
		t.Fatalf("expected last status in details, got %+v", details)
	}
}

func TestWebhookSetsAuthHeaders(t *testing.T) {
	token := "s3cret"
	user := "svc"
	password := "hunter2"

	var gotToken, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(secretTokenHeader)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	endpoint := webhookEndpoint(server.URL)
	endpoint.SecretToken = &token
	endpoint.BasicAuthUser = &user
	endpoint.BasicAuthPassword = &password

	proc := newWebhookProcessor(t, fastPolicy(0))
	histories := proc.Process(context.Background(), testEvent(), []models.Endpoint{endpoint})

	if !histories[0].InvocationResult {
		t.Fatal("expected success")
	}
	if gotToken != token {
		t.Fatalf("secret token header = %q, want %q", gotToken, token)
	}
	if gotAuth == "" {
		t.Fatal("expected basic auth header")
	}
}

func TestWebhookProducesOneHistoryPerEndpoint(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer badServer.Close()

	endpoints := []models.Endpoint{
		webhookEndpoint(okServer.URL),
		webhookEndpoint(badServer.URL),
		webhookEndpoint("http://127.0.0.1:1/unreachable"),
	}

	proc := newWebhookProcessor(t, fastPolicy(1))
	event := testEvent()
	histories := proc.Process(context.Background(), event, endpoints)

	if len(histories) != len(endpoints) {
		t.Fatalf("expected %d histories, got %d", len(endpoints), len(histories))
	}
	for i, history := range histories {
		if history.EndpointID != endpoints[i].ID {
			t.Fatalf("history %d does not match endpoint ordering", i)
		}
		if history.EventID != event.ID {
			t.Fatalf("history %d carries wrong event id", i)
		}
		if history.OrgID != event.OrgID {
			t.Fatalf("history %d carries wrong org id", i)
		}
	}
	if !histories[0].InvocationResult {
		t.Fatal("first endpoint should succeed")
	}
	if histories[1].InvocationResult || histories[2].InvocationResult {
		t.Fatal("failing endpoints must produce failure histories")
	}
}

func TestWebhookRecordsTransportErrorDetails(t *testing.T) {
	proc := newWebhookProcessor(t, fastPolicy(1))
	histories := proc.Process(context.Background(), testEvent(), []models.Endpoint{
		webhookEndpoint("http://127.0.0.1:1/unreachable"),
	})

	if histories[0].InvocationResult {
		t.Fatal("expected failure for unreachable host")
	}
	var details Details
	if err := json.Unmarshal(histories[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if details.Error == "" {
		t.Fatal("expected transport error message in details")
	}
	if details.Code != nil {
		t.Fatalf("transport failure must not carry a status code, got %d", *details.Code)
	}
}
