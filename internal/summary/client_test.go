package summary

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/voiceline/internal/types"
)

func completionResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Setenv("OPENAI_API_KEY", "test-key")
	client := NewClient(ClientConfig{BaseURL: server.URL, Model: "gpt-4o-mini"}, nil)
	return client, server
}

func TestSummarize(t *testing.T) {
	var captured chatRequest
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(completionResponse(
			`{"requestedData":"pricing info","responseData":"sent the pricing sheet",` +
				`"contactInfo":{"email":"jo@example.com","phone":"None"},"deliveryChannels":["email"]}`)))
	})
	defer server.Close()

	job := types.SummaryJob{
		AgentID:    "a1",
		CallID:     "c1",
		Transcript: "User: how much does it cost?\nAgent: here is our pricing.",
		ClientInfo: map[string]string{"email": "jo@example.com"},
	}

	result, err := client.Summarize(context.Background(), job, "Pricing starts at $10.")
	if err != nil {
		t.Fatal(err)
	}
	if result.RequestedData != "pricing info" {
		t.Errorf("unexpected requestedData: %q", result.RequestedData)
	}
	if result.ContactInfo["email"] != "jo@example.com" {
		t.Errorf("unexpected contact info: %v", result.ContactInfo)
	}

	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format")
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("unexpected message layout: %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[1].Content, "how much does it cost?") {
		t.Error("expected transcript in prompt")
	}
	if !strings.Contains(captured.Messages[1].Content, "Pricing starts at $10.") {
		t.Error("expected knowledge text in prompt")
	}
}

func TestSummarizeMalformedModelOutput(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("this is not JSON {")))
	})
	defer server.Close()

	result, err := client.Summarize(context.Background(), types.SummaryJob{
		Transcript: "User: hi",
		ClientInfo: map[string]string{},
	}, "")
	if err != nil {
		t.Fatalf("malformed output must fall back, not error: %v", err)
	}
	if result.ResponseData != "Unable to parse AI response." {
		t.Errorf("expected fallback summary, got %+v", result)
	}
	if result.ContactInfo["email"] != "Unknown" || result.ContactInfo["phone"] != "None" {
		t.Errorf("expected default contact info, got %v", result.ContactInfo)
	}
}

func TestSummarizeAPIError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	defer server.Close()

	if _, err := client.Summarize(context.Background(), types.SummaryJob{Transcript: "User: hi"}, ""); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"}, nil)

	if _, err := client.Summarize(context.Background(), types.SummaryJob{}, ""); err == nil {
		t.Error("expected error when no key source is configured")
	}
}
