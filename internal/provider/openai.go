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

// OpenAIClient speaks the OpenAI-compatible chat completions API,
// which covers hosted endpoints as well as local servers that expose
// the same surface.
type OpenAIClient struct {
	name        string
	apiKey      string
	baseURL     string
	model       string
	client      *http.Client
	maxTokens   int
	temperature float64
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func newOpenAIClient(name string, cfg config.ProviderConfig) *OpenAIClient {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		name:        name,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		client:      &http.Client{Timeout: timeout},
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	oaiReq := c.buildRequest(req)
	reqBody, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

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
		var errResp openAIResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, errors.NewCollaboratorUnavailableError(c.name,
				fmt.Errorf("api error: %s", errResp.Error.Message))
		}
		return nil, errors.NewCollaboratorUnavailableError(c.name,
			fmt.Errorf("http error %d: %s", httpResp.StatusCode, truncate(string(respBody), 200)))
	}

	var oaiResp openAIResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, errors.NewMalformedModelOutputError(c.name, err)
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}

	return &CompletionResponse{
		Content:    content,
		Model:      firstNonEmpty(oaiResp.Model, c.model),
		TokensUsed: oaiResp.Usage.TotalTokens,
		Latency:    time.Since(startTime),
	}, nil
}

func (c *OpenAIClient) buildRequest(req *CompletionRequest) *openAIRequest {
	messages := []openAIMessage{}
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}

	if len(req.Images) == 0 {
		messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})
	} else {
		parts := []openAIContentPart{{Type: "text", Text: req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, openAIContentPart{
				Type: "image_url",
				ImageURL: &openAIImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		messages = append(messages, openAIMessage{Role: "user", Content: parts})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	return &openAIRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Health implements Client by listing models.
func (c *OpenAIClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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
func (c *OpenAIClient) Name() string {
	return c.name
}

// Close implements Client.
func (c *OpenAIClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
