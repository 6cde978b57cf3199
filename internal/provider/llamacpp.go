package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
)

// LlamaCppClient speaks the llama.cpp server completion API. It is
// the default transport: both stock models here run as local llama.cpp
// server processes.
type LlamaCppClient struct {
	name        string
	baseURL     string
	model       string
	client      *http.Client
	maxTokens   int
	temperature float64
}

type llamaCppRequest struct {
	Prompt      string          `json:"prompt"`
	NPredict    int             `json:"n_predict,omitempty"`
	Temperature float64         `json:"temperature"`
	CachePrompt bool            `json:"cache_prompt"`
	Stop        []string        `json:"stop,omitempty"`
	ImageData   []llamaCppImage `json:"image_data,omitempty"`
}

type llamaCppImage struct {
	Data string `json:"data"`
	ID   int    `json:"id"`
}

type llamaCppResponse struct {
	Content         string `json:"content"`
	Model           string `json:"model"`
	TokensPredicted int    `json:"tokens_predicted"`
	TokensEvaluated int    `json:"tokens_evaluated"`
}

func newLlamaCppClient(name string, cfg config.ProviderConfig) *LlamaCppClient {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LlamaCppClient{
		name:        name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		client:      &http.Client{Timeout: timeout},
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete implements Client.
func (c *LlamaCppClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	lcReq := llamaCppRequest{
		Prompt:      renderPrompt(req.System, req.Prompt, len(req.Images)),
		NPredict:    req.MaxTokens,
		Temperature: req.Temperature,
		CachePrompt: true,
		Stop:        []string{"<|im_end|>"},
	}
	if lcReq.NPredict == 0 {
		lcReq.NPredict = c.maxTokens
	}
	if lcReq.Temperature == 0 {
		lcReq.Temperature = c.temperature
	}
	for i, img := range req.Images {
		lcReq.ImageData = append(lcReq.ImageData, llamaCppImage{
			Data: base64.StdEncoding.EncodeToString(img),
			ID:   10 + i,
		})
	}

	reqBody, err := json.Marshal(lcReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(c.name, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyTransportErr(c.name, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.NewCollaboratorUnavailableError(c.name,
			fmt.Errorf("http error %d: %s", httpResp.StatusCode, truncate(string(respBody), 200)))
	}

	var lcResp llamaCppResponse
	if err := json.Unmarshal(respBody, &lcResp); err != nil {
		return nil, errors.NewMalformedModelOutputError(c.name, err)
	}

	return &CompletionResponse{
		Content:    lcResp.Content,
		Model:      firstNonEmpty(lcResp.Model, c.model),
		TokensUsed: lcResp.TokensPredicted + lcResp.TokensEvaluated,
		Latency:    time.Since(startTime),
	}, nil
}

// renderPrompt folds system and user text into a ChatML turn, with
// image placeholders referencing the attached image_data IDs.
func renderPrompt(system, user string, imageCount int) string {
	var b strings.Builder
	if system != "" {
		b.WriteString("<|im_start|>system\n")
		b.WriteString(system)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>user\n")
	for i := 0; i < imageCount; i++ {
		fmt.Fprintf(&b, "[img-%d]", 10+i)
	}
	if imageCount > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(user)
	b.WriteString("<|im_end|>\n<|im_start|>assistant\n")
	return b.String()
}

// Health implements Client against the server's /health endpoint.
func (c *LlamaCppClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyTransportErr(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewCollaboratorUnavailableError(c.name,
			fmt.Errorf("health returned status %d", resp.StatusCode))
	}
	return nil
}

// Name implements Client.
func (c *LlamaCppClient) Name() string {
	return c.name
}

// Close implements Client.
func (c *LlamaCppClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
