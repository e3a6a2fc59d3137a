package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/internal/testutil"
)

func testDelivery() core.Delivery {
	return core.Delivery{
		Lead:    testutil.NewLeadBuilder("lead-1").Build(),
		Action:  testutil.NewActionBuilder("lead-1").Kind(core.ActionInitialContact).Build(),
		Subject: "Hello Ada",
		Body:    "Checking in.",
		Channel: "email",
	}
}

func TestWebhookDeliverer_PostsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL)
	err := d.Deliver(context.Background(), testDelivery())

	require.NoError(t, err)
	assert.Equal(t, "lead-1", got["lead_id"])
	assert.Equal(t, "ada@example.com", got["email"])
	assert.Equal(t, "initial-contact", got["kind"])
	assert.Equal(t, "Hello Ada", got["subject"])
}

func TestWebhookDeliverer_ServerError_Transient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL)
	err := d.Deliver(context.Background(), testDelivery())

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestWebhookDeliverer_ClientError_Permanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL)
	err := d.Deliver(context.Background(), testDelivery())

	require.Error(t, err)
	assert.False(t, core.IsTransient(err))
}

func TestWebhookDeliverer_NetworkFailure_Transient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	d := NewWebhookDeliverer(srv.URL)
	err := d.Deliver(context.Background(), testDelivery())

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}
