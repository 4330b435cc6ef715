package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chravel/chravel-import/internal/config"
)

// Client provides LLM API access
type Client struct {
	provider config.Provider
	client   *http.Client
}

// NewClient creates a new LLM client
func NewClient(provider config.Provider) *Client {
	timeout := provider.Timeout
	if timeout == 0 {
		timeout = 90
	}

	return &Client{
		provider: provider,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// Message represents a chat message. When Parts is set it is sent as the
// multimodal content array instead of Content.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// ContentPart is one element of a multimodal message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *File     `json:"file,omitempty"`
}

// ImageURL points the model at an image or document by URL
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// File references a document such as a PDF. FileData may be a URL or a
// data: URI.
type File struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

// TextPart builds a text content part
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image_url content part
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url, Detail: "high"}}
}

// FilePart builds a file content part
func FilePart(filename, data string) ContentPart {
	return ContentPart{Type: "file", File: &File{Filename: filename, FileData: data}}
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{m.Role, m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	if raw.Content[0] == '[' {
		return json.Unmarshal(raw.Content, &m.Parts)
	}
	return json.Unmarshal(raw.Content, &m.Content)
}

// ResponseFormat asks the API for a constrained output shape
type ResponseFormat struct {
	Type string `json:"type"`
}

// JSONObject requests a single JSON object as the reply
var JSONObject = &ResponseFormat{Type: "json_object"}

// ChatRequest represents an API request
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse represents a non-streaming API response
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Choice is one completion alternative
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Text returns the first choice's content
func (r *ChatResponse) Text() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return r.Choices[0].Message.Content, nil
}

// APIError is a non-200 reply from the provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ChatCompletion sends a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.provider.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.provider.MaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.provider.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.provider.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// GetModel returns the configured text model
func (c *Client) GetModel() string {
	return c.provider.Model
}

// GetVisionModel returns the model used for image and document input,
// falling back to the text model.
func (c *Client) GetVisionModel() string {
	if c.provider.VisionModel != "" {
		return c.provider.VisionModel
	}
	return c.provider.Model
}

// StripCodeFence removes a surrounding ```json fence some models add even
// in JSON mode.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
