package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impact-solutions/chat-gateway/internal/chat"
)

type fakeService struct {
	calls int
	text  string
	res   *chat.PipelineResult
	err   error
}

func (f *fakeService) Process(_ context.Context, req chat.ChatRequest) (*chat.PipelineResult, error) {
	f.calls++
	f.text = req.Text
	return f.res, f.err
}

type fakeSender struct {
	recipient string
	text      string
	err       error
}

func (f *fakeSender) Send(_ context.Context, recipientID, text string) error {
	f.recipient = recipientID
	f.text = text
	return f.err
}

func TestVerifyHandshake(t *testing.T) {
	h := NewHandler(&fakeService{}, &fakeSender{}, "secret-token")

	req := httptest.NewRequest(http.MethodGet,
		"/api/messenger/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.HandleVerify(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h := NewHandler(&fakeService{}, &fakeSender{}, "secret-token")

	req := httptest.NewRequest(http.MethodGet,
		"/api/messenger/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.HandleVerify(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyRejectsWhenUnconfigured(t *testing.T) {
	h := NewHandler(&fakeService{}, &fakeSender{}, "")

	req := httptest.NewRequest(http.MethodGet,
		"/api/messenger/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.HandleVerify(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

const pagePayload = `{
	"object": "page",
	"entry": [
		{"messaging": [
			{"sender": {"id": "user-77"}, "message": {"text": "What services do you offer?"}}
		]}
	]
}`

const flatPayload = `{
	"field": "messages",
	"value": {"sender": {"id": "user-88"}, "message": {"text": "hello from the dashboard"}}
}`

func postWebhook(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/messenger/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func TestWebhookPageShape(t *testing.T) {
	svc := &fakeService{res: &chat.PipelineResult{Response: "We offer social media management.", Classification: chat.IntentServiceInquiry}}
	sender := &fakeSender{}
	h := NewHandler(svc, sender, "tok")

	rec := postWebhook(h, pagePayload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "What services do you offer?", svc.text)
	assert.Equal(t, "user-77", sender.recipient)
	assert.Equal(t, "We offer social media management.", sender.text)
}

func TestWebhookFlatShape(t *testing.T) {
	svc := &fakeService{res: &chat.PipelineResult{Response: "hi!", Classification: chat.IntentGeneralQuestion}}
	sender := &fakeSender{}
	h := NewHandler(svc, sender, "tok")

	rec := postWebhook(h, flatPayload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-88", sender.recipient)
	assert.Equal(t, "hi!", sender.text)
}

func TestWebhookNoMessage(t *testing.T) {
	svc := &fakeService{}
	sender := &fakeSender{}
	h := NewHandler(svc, sender, "tok")

	rec := postWebhook(h, `{"object":"page","entry":[{"messaging":[{"sender":{"id":"u"},"message":{}}]}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "no_message", out["status"])
	assert.Zero(t, svc.calls)
	assert.Empty(t, sender.recipient, "nothing sent without a message")
}

func TestWebhookPipelineFailureSendsAck(t *testing.T) {
	svc := &fakeService{err: errors.New("upstream down")}
	sender := &fakeSender{}
	h := NewHandler(svc, sender, "tok")

	rec := postWebhook(h, flatPayload)
	assert.Equal(t, http.StatusOK, rec.Code, "webhook always acks to avoid redelivery storms")
	assert.Equal(t, ackMessage, sender.text)
}

func TestWebhookScreenTrippedSendsAck(t *testing.T) {
	svc := &fakeService{res: &chat.PipelineResult{ScreenFailure: map[string]any{"jailbreak": map[string]any{"failed": true}}}}
	sender := &fakeSender{}
	h := NewHandler(svc, sender, "tok")

	postWebhook(h, flatPayload)
	assert.Equal(t, ackMessage, sender.text, "screen failures are not forwarded to the user")
}

func TestGraphOutboundSend(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewGraphOutbound("page-token")
	out.baseURL = srv.URL

	err := out.Send(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "/me/messages", gotPath)
	assert.Equal(t, "page-token", gotToken)
	assert.Equal(t, "user-1", gotBody["recipient"].(map[string]any)["id"])
	assert.Equal(t, "hello", gotBody["message"].(map[string]any)["text"])
}

func TestGraphOutboundSendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	out := NewGraphOutbound("page-token")
	out.baseURL = srv.URL

	err := out.Send(context.Background(), "user-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	unconfigured := NewGraphOutbound("")
	assert.Error(t, unconfigured.Send(context.Background(), "user-1", "hello"))
}
