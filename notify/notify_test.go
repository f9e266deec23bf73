package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDirectory(t *testing.T) {
	d := NewMapDirectory(map[string]string{"u1": "u1@example.com"})

	addr, err := d.ContactAddress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", addr)

	_, err = d.ContactAddress(context.Background(), "u2")
	require.ErrorIs(t, err, ErrNoContact)

	d.Set("u2", "u2@example.com")
	addr, err = d.ContactAddress(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2@example.com", addr)
}

func TestIdentityDirectory(t *testing.T) {
	addr, err := IdentityDirectory{}.ContactAddress(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", addr)

	_, err = IdentityDirectory{}.ContactAddress(context.Background(), "")
	require.ErrorIs(t, err, ErrNoContact)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), Message{To: "a@b.c", Subject: "Invoice", Body: "pay"}))
	assert.Contains(t, buf.String(), `"to":"a@b.c"`)
	assert.Contains(t, buf.String(), `"subject":"Invoice"`)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Send(context.Background(), Message{To: "x"}))

	boom := errors.New("boom")
	r.Fail(boom)
	require.ErrorIs(t, r.Send(context.Background(), Message{To: "y"}), boom)

	sent := r.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "x", sent[0].To)
}

func TestBrevoNotifier(t *testing.T) {
	var got brevoRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := NewBrevoNotifier(BrevoConfig{
		APIKey:    "secret",
		FromEmail: "billing@example.com",
		FromName:  "Billing",
		Endpoint:  srv.URL,
	}, srv.Client())

	err := n.Send(context.Background(), Message{To: "u@example.com", Subject: "Invoice", Body: "Pay <now>\n\nThanks"})
	require.NoError(t, err)

	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "billing@example.com", got.Sender.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "u@example.com", got.To[0].Email)
	assert.Equal(t, "Invoice", got.Subject)
	assert.Equal(t, "Pay <now>\n\nThanks", got.TextContent)
	assert.Contains(t, got.HTMLContent, "<p>Pay &lt;now&gt;</p><p>Thanks</p>")
}

func TestBrevoNotifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewBrevoNotifier(BrevoConfig{Endpoint: srv.URL}, srv.Client())

	err := n.Send(context.Background(), Message{To: "u@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	require.ErrorIs(t, n.Send(context.Background(), Message{}), ErrNoContact)
}
