package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jaevor/go-nanoid"
	"github.com/serroba/quota-guard/internal/audit"
	"github.com/serroba/quota-guard/internal/handlers"
	"github.com/serroba/quota-guard/internal/messaging"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"github.com/serroba/quota-guard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordPublish returns a publish function that keeps every event.
func recordPublish[T any](events *[]*T) messaging.Publish[T] {
	return func(e *T) error {
		*events = append(*events, e)

		return nil
	}
}

// errorPublish returns a publish function that always fails.
func errorPublish[T any](err error) messaging.Publish[T] {
	return func(_ *T) error { return err }
}

func newLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(store.NewRateLimitMemoryStore(), zap.NewNop())
}

func statusOf(t *testing.T, err error) int {
	t.Helper()

	var se huma.StatusError
	require.ErrorAs(t, err, &se)

	return se.GetStatus()
}

func TestWebhookHandler_Receive(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a delivery once", func(t *testing.T) {
		var events []*audit.WebhookReceivedEvent

		h := handlers.NewWebhookHandler(newLimiter(), recordPublish(&events), zap.NewNop())
		req := &handlers.ReceiveWebhookRequest{Topic: "orders-create", WebhookID: "wh-1", Shop: "shop-a.example"}

		first, err := h.Receive(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, first.Status)
		assert.Equal(t, handlers.WebhookAccepted, first.Body.Result)

		second, err := h.Receive(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, second.Status)
		assert.Equal(t, handlers.WebhookDuplicate, second.Body.Result)

		require.Len(t, events, 1)
		assert.Equal(t, "wh-1", events[0].WebhookID)
		assert.Equal(t, "orders-create", events[0].Topic)
		assert.Equal(t, "shop-a.example", events[0].Shop)
	})

	t.Run("different ids are independent", func(t *testing.T) {
		var events []*audit.WebhookReceivedEvent

		h := handlers.NewWebhookHandler(newLimiter(), recordPublish(&events), zap.NewNop())

		for _, id := range []string{"wh-1", "wh-2"} {
			resp, err := h.Receive(ctx, &handlers.ReceiveWebhookRequest{Topic: "t", WebhookID: id, Shop: "s"})

			require.NoError(t, err)
			assert.Equal(t, handlers.WebhookAccepted, resp.Body.Result)
		}

		assert.Len(t, events, 2)
	})

	t.Run("redelivery after a failed publish is accepted", func(t *testing.T) {
		var events []*audit.WebhookReceivedEvent

		fail := true
		publish := func(e *audit.WebhookReceivedEvent) error {
			if fail {
				return errors.New("broker down")
			}

			events = append(events, e)

			return nil
		}

		h := handlers.NewWebhookHandler(newLimiter(), publish, zap.NewNop())
		req := &handlers.ReceiveWebhookRequest{Topic: "t", WebhookID: "wh-1", Shop: "s"}

		_, err := h.Receive(ctx, req)
		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))

		fail = false

		resp, err := h.Receive(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.Status)
		assert.Equal(t, handlers.WebhookAccepted, resp.Body.Result)
		require.Len(t, events, 1)
		assert.Equal(t, "wh-1", events[0].WebhookID)

		dup, err := h.Receive(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, handlers.WebhookDuplicate, dup.Body.Result)
	})
}

func TestExportHandler_Request(t *testing.T) {
	gen, err := nanoid.Standard(21)
	require.NoError(t, err)

	t.Run("queues a job for the caller", func(t *testing.T) {
		var events []*audit.ExportRequestedEvent

		h := handlers.NewExportHandler(gen, recordPublish(&events), zap.NewNop())
		ctx := handlers.ContextWithRequestMeta(context.Background(), handlers.RequestMeta{Shop: "shop-a"})

		resp, err := h.Request(ctx, &handlers.RequestExportRequest{Resource: "orders"})

		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.Status)
		assert.Len(t, resp.Body.JobID, 21)
		assert.Equal(t, "orders", resp.Body.Resource)

		require.Len(t, events, 1)
		assert.Equal(t, resp.Body.JobID, events[0].JobID)
		assert.Equal(t, "shop-a", events[0].Shop)
	})

	t.Run("falls back to the client IP without a shop", func(t *testing.T) {
		var events []*audit.ExportRequestedEvent

		h := handlers.NewExportHandler(gen, recordPublish(&events), zap.NewNop())
		ctx := handlers.ContextWithRequestMeta(context.Background(), handlers.RequestMeta{ClientIP: "203.0.113.7"})

		_, err := h.Request(ctx, &handlers.RequestExportRequest{Resource: "customers"})

		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "203.0.113.7", events[0].Shop)
	})

	t.Run("returns 503 when the queue is down", func(t *testing.T) {
		h := handlers.NewExportHandler(gen,
			errorPublish[audit.ExportRequestedEvent](errors.New("broker down")), zap.NewNop())

		_, err := h.Request(context.Background(), &handlers.RequestExportRequest{Resource: "orders"})

		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
	})
}

func TestCopilotQuery(t *testing.T) {
	req := &handlers.CopilotQueryRequest{}
	req.Body.Prompt = "héllo"

	resp, err := handlers.CopilotQuery(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.Body.Accepted)
	assert.Equal(t, 5, resp.Body.PromptLength)
}

func TestConfirmBilling(t *testing.T) {
	req := &handlers.ConfirmBillingRequest{}
	req.Body.ChargeID = "ch_1"

	resp, err := handlers.ConfirmBilling(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "ch_1", resp.Body.ChargeID)
	assert.Equal(t, "confirmed", resp.Body.Result)
}

func TestQuotaHandler(t *testing.T) {
	caller := handlers.ContextWithRequestMeta(context.Background(), handlers.RequestMeta{Shop: "shop-a"})

	t.Run("peek unknown policy is 404", func(t *testing.T) {
		h := handlers.NewQuotaHandler(newLimiter(), zap.NewNop())

		_, err := h.Peek(caller, &handlers.PeekQuotaRequest{Policy: "nope"})

		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	})

	t.Run("peek reports the caller's quota without consuming it", func(t *testing.T) {
		limiter := newLimiter()
		h := handlers.NewQuotaHandler(limiter, zap.NewNop())

		limiter.Check(caller, "export:shop-a", ratelimit.PolicyExport)

		for range 3 {
			resp, err := h.Peek(caller, &handlers.PeekQuotaRequest{Policy: "export"})

			require.NoError(t, err)
			assert.Equal(t, "export", resp.Body.Policy)
			assert.Equal(t, int64(5), resp.Body.Limit)
			assert.Equal(t, int64(4), resp.Body.Remaining)
			assert.True(t, resp.Body.Allowed)
		}
	})

	t.Run("reset by policy restores the quota", func(t *testing.T) {
		limiter := newLimiter()
		h := handlers.NewQuotaHandler(limiter, zap.NewNop())

		for range 5 {
			limiter.Check(caller, "export:shop-a", ratelimit.PolicyExport)
		}

		require.False(t, limiter.Check(caller, "export:shop-a", ratelimit.PolicyExport).Allowed)

		req := &handlers.ResetQuotaRequest{}
		req.Body.Identifier = "shop-a"
		req.Body.Policy = "export"

		_, err := h.Reset(caller, req)
		require.NoError(t, err)

		assert.True(t, limiter.Check(caller, "export:shop-a", ratelimit.PolicyExport).Allowed)
	})

	t.Run("reset without window clears every window", func(t *testing.T) {
		limiter := newLimiter()
		h := handlers.NewQuotaHandler(limiter, zap.NewNop())

		limiter.Check(caller, "client1", ratelimit.MustPolicy("a", 1, time.Minute))
		limiter.Check(caller, "client1", ratelimit.MustPolicy("b", 1, 2*time.Minute))

		req := &handlers.ResetQuotaRequest{}
		req.Body.Identifier = "client1"

		_, err := h.Reset(caller, req)
		require.NoError(t, err)

		size, err := limiter.StoreSize(caller)
		require.NoError(t, err)
		assert.Equal(t, int64(0), size)
	})

	t.Run("stats", func(t *testing.T) {
		limiter := newLimiter()
		h := handlers.NewQuotaHandler(limiter, zap.NewNop())

		limiter.Check(caller, "client1", ratelimit.PolicyAPI)

		resp, err := h.Stats(caller, nil)

		require.NoError(t, err)
		assert.Equal(t, "memory", resp.Body.Backend)
		assert.Equal(t, int64(1), resp.Body.Entries)
		assert.Equal(t, int64(1), resp.Body.Checks)
	})
}
