package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chravel/chravel-import/internal/config"
)

func TestMessage_MarshalJSON(t *testing.T) {
	plain, err := json.Marshal(Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(plain))

	multi, err := json.Marshal(Message{Role: "user", Parts: []ContentPart{
		TextPart("extract"),
		ImagePart("https://example.com/a.png"),
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[
		{"type":"text","text":"extract"},
		{"type":"image_url","image_url":{"url":"https://example.com/a.png","detail":"high"}}
	]}`, string(multi))

	var back Message
	require.NoError(t, json.Unmarshal(multi, &back))
	assert.Len(t, back.Parts, 2)
	assert.Equal(t, "https://example.com/a.png", back.Parts[1].ImageURL.URL)
}

func TestClient_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"events\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.Provider{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "test-model"})
	resp, err := c.ChatCompletion(context.Background(), ChatRequest{
		Messages:       []Message{{Role: "user", Content: "hi"}},
		ResponseFormat: JSONObject,
	})
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, `{"events":[]}`, text)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`slow down`))
	}))
	defer srv.Close()

	c := NewClient(config.Provider{BaseURL: srv.URL, Model: "m"})
	_, err := c.ChatCompletion(context.Background(), ChatRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Temporary())
	assert.Contains(t, err.Error(), "slow down")
}

func TestClient_VisionModelFallback(t *testing.T) {
	assert.Equal(t, "m", NewClient(config.Provider{Model: "m"}).GetVisionModel())
	assert.Equal(t, "v", NewClient(config.Provider{Model: "m", VisionModel: "v"}).GetVisionModel())
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                  `{"a":1}`,
		"```json\n{\"a\":1}\n```":  `{"a":1}`,
		"```\n{\"a\":1}```":        `{"a":1}`,
		"  \n```json\n[]\n```  \n": `[]`,
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFence(in))
	}
}

// Provider Manager Tests

type fakeCompleter struct {
	calls atomic.Int32
	err   error
	reply string
}

func (f *fakeCompleter) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: f.reply}}}}, nil
}

func TestProviderManager_Failover(t *testing.T) {
	primary := &fakeCompleter{err: errors.New("boom")}
	backup := &fakeCompleter{reply: "ok"}

	pm := NewProviderManager(nil, 2, time.Minute)
	pm.AddProvider("backup", backup, 2)
	pm.AddProvider("primary", primary, 1)

	for i := 0; i < 3; i++ {
		resp, err := pm.ChatCompletion(context.Background(), ChatRequest{})
		require.NoError(t, err)
		text, _ := resp.Text()
		assert.Equal(t, "ok", text)
	}

	// Breaker opens after two failures, so the third call skips primary.
	assert.Equal(t, int32(2), primary.calls.Load())
	assert.Equal(t, int32(3), backup.calls.Load())

	status := pm.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "primary", status[0].Name)
	assert.Equal(t, "open", status[0].State)
	assert.Equal(t, "closed", status[1].State)
}

func TestProviderManager_AllFail(t *testing.T) {
	pm := NewProviderManager(nil, 0, 0)
	_, err := pm.ChatCompletion(context.Background(), ChatRequest{})
	assert.Error(t, err)

	pm.AddProvider("only", &fakeCompleter{err: errors.New("down")}, 1)
	_, err = pm.ChatCompletion(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}
