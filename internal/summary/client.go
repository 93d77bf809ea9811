package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/user/voiceline/internal/paramstore"
	"github.com/user/voiceline/internal/types"
)

// ClientConfig carries the LLM settings for summary generation.
type ClientConfig struct {
	BaseURL string
	Model   string
	// APIKeyParameter is the SSM parameter holding the API key. The
	// OPENAI_API_KEY environment variable takes precedence when set.
	APIKeyParameter string
	Temperature     float32
}

// Client generates structured call summaries through an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	params     paramstore.Getter

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

// NewClient creates a summary Client. params may be nil when the API key is
// supplied through the environment.
func NewClient(cfg ClientConfig, params paramstore.Getter) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		params: params,
	}
}

// key resolves the API key once per process: environment first, then the
// parameter store.
func (c *Client) key(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		if env := os.Getenv("OPENAI_API_KEY"); env != "" {
			c.apiKey = env
			return
		}
		if c.params == nil || c.cfg.APIKeyParameter == "" {
			c.keyErr = fmt.Errorf("summary: no API key configured")
			return
		}
		c.apiKey, c.keyErr = c.params.GetParameter(ctx, c.cfg.APIKeyParameter)
	})
	return c.apiKey, c.keyErr
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []requestMessage `json:"messages"`
	Temperature    *float32         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type requestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are a helpful assistant that generates structured JSON summaries."

// Summarize builds the summary prompt from the transcript and knowledge text
// and asks the model for a structured JSON summary. On undecodable model
// output it returns a fallback summary rather than an error.
func (c *Client) Summarize(ctx context.Context, job types.SummaryJob, knowledgeText string) (*types.CallSummary, error) {
	apiKey, err := c.key(ctx)
	if err != nil {
		return nil, err
	}

	contactInfo := map[string]string{
		"email": valueOr(job.ClientInfo, "email", "Unknown"),
		"phone": valueOr(job.ClientInfo, "phone", "None"),
	}

	prompt := buildPrompt(job.Transcript, knowledgeText, contactInfo)

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []requestMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    &c.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("summary: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("summary: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summary: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("summary: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary: API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("summary: parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("summary: empty completion")
	}

	var result types.CallSummary
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &result); err != nil {
		// Model returned malformed JSON; fall back rather than lose the call.
		return &types.CallSummary{
			RequestedData:    "N/A",
			ResponseData:     "Unable to parse AI response.",
			ContactInfo:      contactInfo,
			DeliveryChannels: []string{"email"},
		}, nil
	}
	if result.ContactInfo == nil {
		result.ContactInfo = contactInfo
	}
	return &result, nil
}

func buildPrompt(transcript, knowledgeText string, contactInfo map[string]string) string {
	contact, _ := json.Marshal(contactInfo)
	var b strings.Builder
	b.WriteString("A customer just finished a conversation with an AI agent. ")
	b.WriteString("Here is the full transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nAgent knowledge base:\n")
	b.WriteString(knowledgeText)
	b.WriteString("\n\nReturn a JSON object with exactly these fields:\n")
	b.WriteString(`{"requestedData": "what the user requested", ` +
		`"responseData": "the response/answer provided", ` +
		`"contactInfo": {"email": "extract from transcript or 'Unknown'", "phone": "extract from transcript or 'None'"}, ` +
		`"deliveryChannels": ["email", "whatsapp"]}`)
	b.WriteString("\n\nKnown contact info: ")
	b.Write(contact)
	b.WriteString("\nInfer delivery channels only when mentioned in the conversation.")
	return b.String()
}

func valueOr(m map[string]string, key, fallback string) string {
	if m != nil && m[key] != "" {
		return m[key]
	}
	return fallback
}
