package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbench/internal/corpus"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
)

// fakeOllama records the calls a local provider makes.
type fakeOllama struct {
	mu       sync.Mutex
	loads    int
	unloads  int
	chats    int
	failures int // chat calls left to fail
	images   int
	reply    string
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case body["keep_alive"] == "0s":
			f.unloads++
		case body["prompt"] == nil || body["prompt"] == "":
			f.loads++
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"model":%q,"response":"","done":true}`+"\n", body["model"])
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Images []string `json:"images"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.chats++
		if len(body.Messages) > 0 && len(body.Messages[0].Images) > 0 {
			f.images++
		}
		if f.failures > 0 {
			f.failures--
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"CUDA error: misaligned address"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":%q},"done":true}`+"\n", body.Model, f.reply)
	})
	return mux
}

func newLocalTestProvider(t *testing.T, url, model string) *LocalProvider {
	t.Helper()
	m, err := models.Lookup(model)
	require.NoError(t, err)
	p, err := NewLocalProvider(LocalConfig{
		BaseURL:  url,
		Model:    m.Model,
		Sampling: Sampling{MaxTokens: 20, TopP: 1, Temperature: 0.3, RepetitionPenalty: 1.1},
	})
	require.NoError(t, err)
	return p
}

func TestLocalLoadsOnceAndTrimsEcho(t *testing.T) {
	fake := &fakeOllama{reply: "[INST] Would you share? [/INST]  YES "}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := newLocalTestProvider(t, srv.URL, "llava-hf/llava-v1.6-mistral-7b-hf")
	req := prompt.Plain("Would you share?")
	req.Image = &corpus.Image{Name: "blank", Data: []byte{0xff, 0xd8}, MediaType: "image/jpeg"}

	for range 2 {
		got, err := p.Complete(context.Background(), req, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"YES", "YES", "YES"}, got)
	}

	fake.mu.Lock()
	assert.Equal(t, 1, fake.loads)
	assert.Equal(t, 6, fake.chats)
	assert.Equal(t, 6, fake.images)
	fake.mu.Unlock()

	require.NoError(t, p.Close())
	assert.Equal(t, 1, fake.unloads)
}

func TestLocalReloadsAfterFailure(t *testing.T) {
	fake := &fakeOllama{reply: "NO", failures: 1}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := newLocalTestProvider(t, srv.URL, "google/gemma-3-4b-it")
	got, err := p.Complete(context.Background(), prompt.Plain("x"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"NO", "NO"}, got)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.unloads)
	assert.Equal(t, 2, fake.loads)
}

func TestLocalPlaceholdersAfterSecondFailure(t *testing.T) {
	fake := &fakeOllama{reply: "NO", failures: 2}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := newLocalTestProvider(t, srv.URL, "google/gemma-3-4b-it")
	got, err := p.Complete(context.Background(), prompt.Plain("x"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{PlaceholderReply, PlaceholderReply, PlaceholderReply}, got)
}

func TestLocalSplitsIntoSingleSampleBatches(t *testing.T) {
	fake := &fakeOllama{reply: "system\nhi\nassistant\nL3", failures: 1}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	// Ceiling 1: only the failed first sample is retried.
	p := newLocalTestProvider(t, srv.URL, "Qwen/Qwen2-VL-2B-Instruct")
	got, err := p.Complete(context.Background(), prompt.Plain("hi"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"L3", "L3", "L3"}, got)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 4, fake.chats)
	assert.Equal(t, 1, fake.unloads)
}

func TestLocalStripsPrompt(t *testing.T) {
	m, err := models.Lookup("facebook/chameleon-7b")
	require.NoError(t, err)
	p, err := NewLocalProvider(LocalConfig{Model: m.Model})
	require.NoError(t, err)

	req := &prompt.Request{Dialect: models.DialectCompletion, Text: "Rate it:"}
	assert.Equal(t, " L2", p.clean("Rate it: L2", req))
}

func TestNewLocalProviderRejectsHostedModel(t *testing.T) {
	m, err := models.Lookup("gpt-4o")
	require.NoError(t, err)
	_, err = NewLocalProvider(LocalConfig{Model: m.Model})
	assert.Error(t, err)
}
