package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (s *fakeSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, title)
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func testNotifyLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNotifyHonorsEventFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"execution"}, testNotifyLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "execution", "filled", "details"))
	require.NoError(t, n.Notify(ctx, "scan", "noise", "details"))

	assert.Equal(t, []string{"filled"}, sender.sent)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"execution"}, testNotifyLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "UNHEDGED POSITION", "details"))
	assert.Equal(t, []string{"UNHEDGED POSITION"}, sender.sent)
}

func TestEmptyFilterAllowsEverything(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testNotifyLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, sender.sent, 1)
}

func TestOneSenderFailingDoesNotStopOthers(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("api down")}
	working := &fakeSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, testNotifyLogger())

	err := n.NotifyAll(context.Background(), "alert", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"alert"}, working.sent)
}

func TestNoSendersIsANoOp(t *testing.T) {
	n := NewNotifier(nil, nil, testNotifyLogger())
	assert.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), "title", "body"))

	assert.Equal(t, "application/json", gotContentType)
	assert.Contains(t, string(gotBody), "**title**")
}

func TestDiscordSenderSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
