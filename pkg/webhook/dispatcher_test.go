package webhook

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence/memory"
)

type receivedRequest struct {
	signature string
	event     string
	retry     string
	body      []byte
}

// receiver is an httptest-backed webhook endpoint that records every request
// and answers with a configurable status.
type receiver struct {
	server   *httptest.Server
	status   int
	response string
	requests []receivedRequest
}

func newReceiver(t *testing.T, status int) *receiver {
	t.Helper()

	r := &receiver{status: status, response: "ok"}

	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)

		r.requests = append(r.requests, receivedRequest{
			signature: req.Header.Get(SignatureHeader),
			event:     req.Header.Get(EventHeader),
			retry:     req.Header.Get(RetryHeader),
			body:      body,
		})

		w.WriteHeader(r.status)
		_, _ = w.Write([]byte(r.response))
	}))
	t.Cleanup(r.server.Close)

	return r
}

func activeWebhook(t *testing.T, store *memory.Persistence, url string, events ...string) *models.Webhook {
	t.Helper()

	webhook := &models.Webhook{
		Name:     "test receiver",
		URL:      url,
		Secret:   "s3cr3t",
		Events:   events,
		IsActive: true,
	}
	require.NoError(t, store.Webhooks().Save(t.Context(), webhook))

	return webhook
}

func TestDispatchSuccess(t *testing.T) {
	store := memory.NewPersistence()
	endpoint := newReceiver(t, http.StatusOK)
	webhook := activeWebhook(t, store, endpoint.server.URL, "deal.updated")

	dispatcher := NewDispatcher(store, nil, slog.Default())

	delivery, err := dispatcher.Dispatch(t.Context(), webhook, "deal.updated", map[string]any{"id": "deal-42"})
	require.NoError(t, err)
	require.NotNil(t, delivery)

	assert.Equal(t, models.DeliveryStatusSuccess, delivery.Status)
	assert.Equal(t, 0, delivery.Attempts, "successful first attempt burns no retry budget")
	require.NotNil(t, delivery.StatusCode)
	assert.Equal(t, http.StatusOK, *delivery.StatusCode)
	require.NotNil(t, delivery.ResponseBody)
	assert.Equal(t, "ok", *delivery.ResponseBody)
	assert.Nil(t, delivery.NextRetryAt)

	require.Len(t, endpoint.requests, 1)
	received := endpoint.requests[0]
	assert.Equal(t, "deal.updated", received.event)
	assert.Equal(t, "0", received.retry, "first attempt carries zero prior attempts")
	assert.True(t, VerifySignature(received.body, webhook.Secret, received.signature))
	assert.JSONEq(t, `{"id":"deal-42"}`, string(received.body))
}

func TestDispatchFailureSchedulesRetry(t *testing.T) {
	store := memory.NewPersistence()
	endpoint := newReceiver(t, http.StatusInternalServerError)
	webhook := activeWebhook(t, store, endpoint.server.URL, "deal.updated")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcher(store, nil, slog.Default(), WithClock(func() time.Time { return now }))

	delivery, err := dispatcher.Dispatch(t.Context(), webhook, "deal.updated", map[string]any{"id": "deal-42"})
	require.NoError(t, err)

	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 1, delivery.Attempts)
	require.NotNil(t, delivery.NextRetryAt)
	assert.Equal(t, now.Add(2*time.Minute), *delivery.NextRetryAt)
	require.NotNil(t, delivery.ErrorMessage)
	assert.Contains(t, *delivery.ErrorMessage, "500")

	stored, err := store.Deliveries().ByID(t.Context(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
}

func TestDispatchUnreachableReceiver(t *testing.T) {
	store := memory.NewPersistence()
	webhook := activeWebhook(t, store, "http://127.0.0.1:1/hook", "deal.updated")

	dispatcher := NewDispatcher(store, nil, slog.Default())

	delivery, err := dispatcher.Dispatch(t.Context(), webhook, "deal.updated", map[string]any{"id": 1})
	require.NoError(t, err)

	// Connection errors persist a retryable delivery; the event is not lost.
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 1, delivery.Attempts)
	assert.NotNil(t, delivery.NextRetryAt)
	assert.Nil(t, delivery.StatusCode)
}

func TestDispatchSkipsUndispatchableWebhook(t *testing.T) {
	store := memory.NewPersistence()
	endpoint := newReceiver(t, http.StatusOK)

	webhook := activeWebhook(t, store, endpoint.server.URL, "deal.updated")
	webhook.IsActive = false

	dispatcher := NewDispatcher(store, nil, slog.Default())

	delivery, err := dispatcher.Dispatch(t.Context(), webhook, "deal.updated", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Nil(t, delivery)
	assert.Empty(t, endpoint.requests)
}

func TestDispatchEventFansOut(t *testing.T) {
	store := memory.NewPersistence()
	first := newReceiver(t, http.StatusOK)
	second := newReceiver(t, http.StatusOK)

	activeWebhook(t, store, first.server.URL, "deal.updated")
	activeWebhook(t, store, second.server.URL, "deal.updated")
	activeWebhook(t, store, second.server.URL, "lead.created")

	dispatcher := NewDispatcher(store, nil, slog.Default())

	require.NoError(t, dispatcher.DispatchEvent(t.Context(), "deal.updated", map[string]any{"id": 1}))

	assert.Len(t, first.requests, 1)
	assert.Len(t, second.requests, 1, "the lead.created subscription is not matched")
}

func TestAttemptTruncatesResponseBody(t *testing.T) {
	store := memory.NewPersistence()
	endpoint := newReceiver(t, http.StatusOK)
	endpoint.response = strings.Repeat("x", models.ResponseBodyLimit*2)
	webhook := activeWebhook(t, store, endpoint.server.URL, "deal.updated")

	dispatcher := NewDispatcher(store, nil, slog.Default())

	delivery, err := dispatcher.Dispatch(t.Context(), webhook, "deal.updated", map[string]any{"id": 1})
	require.NoError(t, err)

	require.NotNil(t, delivery.ResponseBody)
	assert.Len(t, *delivery.ResponseBody, models.ResponseBodyLimit)
}

func TestAttemptAbandonsAtCap(t *testing.T) {
	store := memory.NewPersistence()
	endpoint := newReceiver(t, http.StatusBadGateway)
	webhook := activeWebhook(t, store, endpoint.server.URL, "deal.updated")

	dispatcher := NewDispatcher(store, nil, slog.Default())

	delivery := &models.WebhookDelivery{
		ID:        "del-1",
		WebhookID: webhook.ID,
		Event:     "deal.updated",
		Payload:   []byte(`{"id":1}`),
		Status:    models.DeliveryStatusPending,
		Attempts:  models.MaxDeliveryAttempts - 1,
	}
	require.NoError(t, store.Deliveries().Save(t.Context(), delivery))

	require.NoError(t, dispatcher.Attempt(t.Context(), webhook, delivery))

	assert.Equal(t, models.MaxDeliveryAttempts, delivery.Attempts)
	assert.True(t, delivery.Abandoned())
	assert.Equal(t, "4", endpoint.requests[0].retry)
}

func TestAttemptRetryHeaderCountsPriorAttempts(t *testing.T) {
	store := memory.NewPersistence()
	endpoint := newReceiver(t, http.StatusOK)
	webhook := activeWebhook(t, store, endpoint.server.URL, "deal.updated")

	dispatcher := NewDispatcher(store, nil, slog.Default())

	delivery := &models.WebhookDelivery{
		ID:        "del-2",
		WebhookID: webhook.ID,
		Event:     "deal.updated",
		Payload:   []byte(`{"id":1}`),
		Status:    models.DeliveryStatusPending,
		Attempts:  3,
	}
	require.NoError(t, store.Deliveries().Save(t.Context(), delivery))

	require.NoError(t, dispatcher.Attempt(t.Context(), webhook, delivery))

	require.Len(t, endpoint.requests, 1)
	assert.Equal(t, "3", endpoint.requests[0].retry)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 2*time.Minute, BackoffDelay(1))
	assert.Equal(t, 4*time.Minute, BackoffDelay(2))
	assert.Equal(t, 8*time.Minute, BackoffDelay(3))
	assert.Equal(t, 16*time.Minute, BackoffDelay(4))
}
