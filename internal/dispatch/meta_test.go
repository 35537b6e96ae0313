// ABOUTME: Tests for the Meta Graph API transport
// ABOUTME: Verifies the page-messages request shape and status handling

package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inbox-console/internal/model"
)

func TestGraphTransportSend(t *testing.T) {
	var gotPath, gotToken string
	var gotBody graphSendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"message_id":"mid.123"}`))
	}))
	defer server.Close()

	tr := NewGraphTransport("facebook", "page-token", nil)
	tr.SetBaseURL(server.URL)

	target := model.DispatchTarget{
		Channel:   model.ChannelFacebook,
		AccountID: "page-42",
		UserID:    "psid-9",
	}
	err := tr.Send(context.Background(), target, "hello from support")

	require.NoError(t, err)
	assert.Equal(t, "/page-42/messages", gotPath)
	assert.Equal(t, "page-token", gotToken)
	assert.Equal(t, "psid-9", gotBody.Recipient.ID)
	assert.Equal(t, "hello from support", gotBody.Message.Text)
	assert.Equal(t, "RESPONSE", gotBody.MessagingType)
}

func TestGraphTransportRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := NewGraphTransport("instagram", "bad-token", nil)
	tr.SetBaseURL(server.URL)

	err := tr.Send(context.Background(), model.DispatchTarget{AccountID: "page-1", UserID: "u1"}, "hi")

	require.Error(t, err)
	assert.True(t, model.IsTransport(err))
}

func TestGraphTransportConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	tr := NewGraphTransport("facebook", "token", nil)
	tr.SetBaseURL(server.URL)

	err := tr.Send(context.Background(), model.DispatchTarget{AccountID: "page-1", UserID: "u1"}, "hi")

	require.Error(t, err)
	assert.True(t, model.IsTransport(err))
}
