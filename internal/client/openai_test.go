package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbench/internal/corpus"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
)

func newOpenAITestProvider(t *testing.T, url string, dialect models.Dialect, pauses *int) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:   "sk-test-0123456789",
		BaseURL:  url + "/",
		Model:    "gpt-4o",
		Dialect:  dialect,
		Sampling: Sampling{MaxTokens: 20, TopP: 1, Temperature: 0.3},
		User:     "tester@lab",
		Retry:    noWait(pauses),
	})
	require.NoError(t, err)
	return p
}

func TestOpenAIChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-0123456789", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o","choices":[
			{"index":0,"message":{"role":"assistant","content":"yes"},"finish_reason":"stop"},
			{"index":1,"message":{"role":"assistant","content":"no"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	pauses := 0
	p := newOpenAITestProvider(t, srv.URL, models.DialectChat, &pauses)

	req := prompt.Plain("Would you share this?")
	req.Turns[0].Parts = append(req.Turns[0].Parts, prompt.Part{
		Kind:   prompt.PartImage,
		Image:  &corpus.Image{Name: "a.jpg", Data: []byte{1, 2, 3}, MediaType: "image/jpeg"},
		Detail: "high",
	})
	req.Turns = append(req.Turns, prompt.Turn{Role: prompt.RoleAssistant, Parts: []prompt.Part{{Kind: prompt.PartText}}})

	got, err := p.Complete(context.Background(), req, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "no"}, got)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 2, body["n"])
	assert.EqualValues(t, 20, body["max_tokens"])
	assert.Equal(t, "tester@lab", body["user"])

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[0].(map[string]any)
	assert.Equal(t, "user", user["role"])
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/jpeg;base64,AQID", img["url"])
	assert.Equal(t, "high", img["detail"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	assert.Zero(t, pauses)
}

func TestOpenAICompletion(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c2","object":"text_completion","created":1,"model":"gpt-3.5-turbo-instruct","choices":[
			{"index":0,"text":" L4","finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	pauses := 0
	p := newOpenAITestProvider(t, srv.URL, models.DialectCompletion, &pauses)

	got, err := p.Complete(context.Background(), &prompt.Request{Dialect: models.DialectCompletion, Text: "Rate it:"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{" L4"}, got)
	assert.Equal(t, "Rate it:", body["prompt"])
}

func TestOpenAIRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"server error","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c3","object":"chat.completion","created":1,"model":"gpt-4o","choices":[
			{"index":0,"message":{"role":"assistant","content":"fine"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	pauses := 0
	p := newOpenAITestProvider(t, srv.URL, models.DialectChat, &pauses)
	got, err := p.Complete(context.Background(), prompt.Plain("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, got)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1, pauses)
}

func TestOpenAIShortReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c4","object":"chat.completion","created":1,"model":"gpt-4o","choices":[
			{"index":0,"message":{"role":"assistant","content":"one"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	pauses := 0
	p := newOpenAITestProvider(t, srv.URL, models.DialectChat, &pauses)
	_, err := p.Complete(context.Background(), prompt.Plain("x"), 3)
	assert.ErrorIs(t, err, ErrShortCompletion)
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrMissingKey)
}
