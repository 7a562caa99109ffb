package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/ingest"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
	"github.com/Proton-105/tasklink-bot/pkg/config"
)

type apiCall struct {
	method string
	body   map[string]any
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]string
	delay     time.Duration
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	body := map[string]any{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
	} else if err := r.ParseMultipartForm(1 << 20); err == nil {
		for k, v := range r.MultipartForm.Value {
			body[k] = v[0]
		}
	}

	a.mu.Lock()
	a.calls = append(a.calls, apiCall{method: method, body: body})
	resp, ok := a.responses[method]
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if !ok {
		resp = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(resp))
}

func (a *fakeAPI) last() apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[len(a.calls)-1]
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.BotConfig{
		Token:          "123:abc",
		APIURL:         srv.URL,
		RequestTimeout: 5 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	return client
}

func TestClient_SendText(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":555,"type":"private"}}}`,
	}}
	client := newTestClient(t, api)

	err := client.SendText(context.Background(), 555, "<b>hi</b>", messenger.SendOptions{DisablePreview: true})
	require.NoError(t, err)

	call := api.last()
	assert.Equal(t, "sendMessage", call.method)
	assert.Equal(t, "555", call.body["chat_id"])
	assert.Equal(t, "<b>hi</b>", call.body["text"])
	assert.Equal(t, "HTML", call.body["parse_mode"])
}

func TestClient_SendTextBlockedIsRejected(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"sendMessage": `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`,
	}}
	client := newTestClient(t, api)

	err := client.SendText(context.Background(), 555, "hi", messenger.SendOptions{})
	require.Error(t, err)
	assert.Equal(t, messenger.ResultRejected, messenger.Classify(err))
}

func TestClient_GetUpdates(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"getUpdates": `{"ok":true,"result":[
			{"update_id":7,"message":{"message_id":1,"date":0,"text":"482913","chat":{"id":555,"type":"private"}}},
			{"update_id":8,"message":{"message_id":2,"date":0,"text":"/status","chat":{"id":555,"type":"private"}}}
		]}`,
	}}
	client := newTestClient(t, api)

	updates, err := client.GetUpdates(context.Background(), 7, 25*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, 7, updates[0].ID)
	assert.Equal(t, "482913", updates[0].Message.Text)

	call := api.last()
	assert.Equal(t, "getUpdates", call.method)
	assert.EqualValues(t, 7, call.body["offset"])
	assert.EqualValues(t, 25, call.body["timeout"])
	assert.Equal(t, []any{"message"}, call.body["allowed_updates"])
}

func TestClient_GetUpdatesTransportError(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"getUpdates": `{"ok":false,"error_code":502,"description":"Bad Gateway"}`,
	}}
	client := newTestClient(t, api)

	_, err := client.GetUpdates(context.Background(), 0, 0)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClient_CallHonoursContext(t *testing.T) {
	api := &fakeAPI{delay: 500 * time.Millisecond}
	client := newTestClient(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.GetUpdates(ctx, 0, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestClient_Webhook(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	ctx := context.Background()

	require.NoError(t, client.SetWebhook(ctx, ingest.WebhookConfig{
		URL:    "https://bot.example.com/telegram/webhook",
		Secret: "s3cret",
	}))
	call := api.last()
	assert.Equal(t, "setWebhook", call.method)
	assert.Equal(t, "https://bot.example.com/telegram/webhook", call.body["url"])
	assert.Equal(t, "s3cret", call.body["secret_token"])

	require.NoError(t, client.RemoveWebhook(ctx, true))
	call = api.last()
	assert.Equal(t, "deleteWebhook", call.method)
	assert.Equal(t, true, call.body["drop_pending_updates"])
}
