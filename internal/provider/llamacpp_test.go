package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
)

func llamaCppConfig(url string) config.ProviderConfig {
	return config.ProviderConfig{
		Type:        "llamacpp",
		BaseURL:     url,
		Model:       "test-model",
		Timeout:     config.Duration(5 * time.Second),
		MaxTokens:   128,
		Temperature: 0.1,
	}
}

func TestLlamaCppComplete(t *testing.T) {
	var captured llamaCppRequest
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("path = %s, want /completion", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(llamaCppResponse{Content: `[["ls"]]`, TokensPredicted: 8})
	}))

	client := newLlamaCppClient("language", llamaCppConfig(server.URL))
	resp, err := client.Complete(context.Background(), &CompletionRequest{
		System: "system words",
		Prompt: "user words",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != `[["ls"]]` {
		t.Errorf("Content = %q", resp.Content)
	}
	if !strings.Contains(captured.Prompt, "system words") || !strings.Contains(captured.Prompt, "user words") {
		t.Errorf("prompt should fold in system and user text, got %q", captured.Prompt)
	}
	if captured.NPredict != 128 {
		t.Errorf("NPredict = %d, want config default 128", captured.NPredict)
	}
	if !captured.CachePrompt {
		t.Error("prompt caching should be requested")
	}
}

func TestLlamaCppCompleteAttachesImages(t *testing.T) {
	var captured llamaCppRequest
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(llamaCppResponse{Content: `{"targets": []}`})
	}))

	client := newLlamaCppClient("vision", llamaCppConfig(server.URL))
	_, err := client.Complete(context.Background(), &CompletionRequest{
		Prompt: "find the button",
		Images: [][]byte{{0x89, 0x50, 0x4e, 0x47}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(captured.ImageData) != 1 {
		t.Fatalf("ImageData length = %d, want 1", len(captured.ImageData))
	}
	if captured.ImageData[0].ID != 10 {
		t.Errorf("image id = %d, want 10", captured.ImageData[0].ID)
	}
	if !strings.Contains(captured.Prompt, "[img-10]") {
		t.Errorf("prompt should reference the image, got %q", captured.Prompt)
	}
}

func TestLlamaCppCompleteServerError(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))

	client := newLlamaCppClient("language", llamaCppConfig(server.URL))
	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "hi"})
	if !errors.HasCode(err, errors.ErrCodeCollaboratorUnavailable) {
		t.Fatalf("expected %s, got %v", errors.ErrCodeCollaboratorUnavailable, err)
	}
}

func TestLlamaCppCompleteConnectionRefused(t *testing.T) {
	client := newLlamaCppClient("language", llamaCppConfig("http://127.0.0.1:1"))
	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "hi"})
	if !errors.HasCode(err, errors.ErrCodeCollaboratorUnavailable) {
		t.Fatalf("expected %s, got %v", errors.ErrCodeCollaboratorUnavailable, err)
	}
}

func TestLlamaCppHealth(t *testing.T) {
	healthy := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	client := newLlamaCppClient("language", llamaCppConfig(healthy.URL))
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health on healthy server: %v", err)
	}

	loading := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	client = newLlamaCppClient("language", llamaCppConfig(loading.URL))
	if err := client.Health(context.Background()); !errors.HasCode(err, errors.ErrCodeCollaboratorUnavailable) {
		t.Errorf("expected %s, got %v", errors.ErrCodeCollaboratorUnavailable, err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"model": "served-model", "choices": [{"message": {"role": "assistant", "content": "corrected text"}}], "usage": {"total_tokens": 12}}`))
	}))

	client := newOpenAIClient("language", config.ProviderConfig{
		Type:    "openai",
		BaseURL: server.URL,
		Model:   "test-model",
		APIKey:  "sk-test",
		Timeout: config.Duration(5 * time.Second),
	})

	resp, err := client.Complete(context.Background(), &CompletionRequest{
		System: "fix grammar",
		Prompt: "helo wrld",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "corrected text" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 12 {
		t.Errorf("TokensUsed = %d, want 12", resp.TokensUsed)
	}
	if resp.Model != "served-model" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestOpenAICompleteAPIError(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "auth"}}`))
	}))

	client := newOpenAIClient("language", config.ProviderConfig{BaseURL: server.URL, Timeout: config.Duration(5 * time.Second)})
	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "hi"})
	if !errors.HasCode(err, errors.ErrCodeCollaboratorUnavailable) {
		t.Fatalf("expected %s, got %v", errors.ErrCodeCollaboratorUnavailable, err)
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("error should surface the API message, got %v", err)
	}
}
