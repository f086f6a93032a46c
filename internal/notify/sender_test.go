package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTelegramServer(t *testing.T, sendStatus int) (*httptest.Server, *[]string) {
	t.Helper()
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"stacksend","username":"stacksend_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			texts = append(texts, r.PostForm.Get("text"))
			if sendStatus != http.StatusOK {
				w.WriteHeader(sendStatus)
				fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":42,"type":"private"},"text":"hi"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &texts
}

func TestTelegramSenderSendMessage(t *testing.T) {
	srv, texts := newTelegramServer(t, http.StatusOK)

	sender, err := NewTelegramSender(TelegramConfig{Token: "test-token", APIEndpoint: srv.URL + "/bot%s/%s"})
	require.NoError(t, err)

	id, err := sender.SendMessage(context.Background(), "42", "hello *there*")
	require.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, []string{"hello *there*"}, *texts)
}

func TestTelegramSenderBlocked(t *testing.T) {
	srv, _ := newTelegramServer(t, http.StatusForbidden)

	sender, err := NewTelegramSender(TelegramConfig{Token: "test-token", APIEndpoint: srv.URL + "/bot%s/%s"})
	require.NoError(t, err)

	_, err = sender.SendMessage(context.Background(), "42", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestTelegramSenderRejectsBadChatID(t *testing.T) {
	srv, _ := newTelegramServer(t, http.StatusOK)

	sender, err := NewTelegramSender(TelegramConfig{Token: "test-token", APIEndpoint: srv.URL + "/bot%s/%s"})
	require.NoError(t, err)

	_, err = sender.SendMessage(context.Background(), "not-a-number", "hello")
	assert.Error(t, err)
}
