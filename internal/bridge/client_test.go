// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/genstudio/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		BaseURL:           server.URL,
		Token:             "test-token",
		RequestsPerSecond: 1000,
		Burst:             100,
		Logger:            log.New(io.Discard, "", 0),
	})
}

func TestNewClient_BaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultBaseURL},
		{"http://bridge.local:8787/", "http://bridge.local:8787"},
		{"http://bridge.local:8787", "http://bridge.local:8787"},
	}
	for _, tt := range tests {
		c := NewClient(ClientConfig{BaseURL: tt.in, Logger: log.New(io.Discard, "", 0)})
		if got := c.BaseURL(); got != tt.want {
			t.Errorf("BaseURL() for %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestClient_Chat(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"response": "Here is your poster",
			"images": ["gen/1.png"],
			"interaction": {"kind": "choices", "prompt": "Another?", "options": [{"id": "y", "label": "Yes"}]},
			"memory_update": {"summary": "prefers pastel"}
		}`))
	})

	resp, err := client.Chat(context.Background(), ChatRequest{
		BrandID: "acme",
		Content: "make a poster",
		Attachments: []model.Attachment{
			{Name: "logo.png", Data: "AAAA", MIME: "image/png", Source: model.SourceUpload},
		},
		Context: model.SendContext{AspectRatio: "9:16"},
	})
	require.NoError(t, err)

	require.Equal(t, "acme", got.BrandID)
	require.Equal(t, "9:16", got.Context.AspectRatio)
	require.Len(t, got.Attachments, 1)

	require.Equal(t, "Here is your poster", resp.Response)
	require.Equal(t, []string{"gen/1.png"}, resp.Images)
	require.NotNil(t, resp.Interaction)
	require.Equal(t, model.InteractionChoices, resp.Interaction.Kind)
	require.Equal(t, "prefers pastel", resp.MemoryUpdate.Summary)
}

func TestClient_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": {"code": "model_down", "message": "renderer unavailable"}}`))
	})

	_, err := client.Chat(context.Background(), ChatRequest{Content: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Code != "model_down" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.ClearChat(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ClearChat() error = %v, want ErrUnauthorized", err)
	}
}

func TestClient_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Chat(context.Background(), ChatRequest{Content: "x"})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load(), "bridge client must not retry")
}

// =============================================================================
// PROGRESS AND MEDIA TESTS
// =============================================================================

func TestClient_GetProgress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/progress", r.URL.Path)
		w.Write([]byte(`{"status":"Rendering","skills":["layout"],"thinking_steps":[{"id":"s1","step":"Plan","status":"pending","seq":1}]}`))
	})

	p, err := client.GetProgress(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Rendering", p.Status)
	require.Equal(t, []string{"layout"}, p.Skills)
	require.Len(t, p.ThinkingSteps, 1)
	require.Equal(t, model.StepPending, p.ThinkingSteps[0].Status)
}

func TestClient_RegisterGeneratedImages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Images []ImageRegistration `json:"images"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Images, 2)
		w.Write([]byte(`{"entries":[{"id":"a1","path":"lib/a1.png","image":"gen/1.png"},{"id":"a2","path":"lib/a2.png","image":"gen/2.png"}]}`))
	})

	entries, err := client.RegisterGeneratedImages(context.Background(), []ImageRegistration{
		{BrandID: "acme", Image: "gen/1.png"},
		{BrandID: "acme", Image: "gen/2.png"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "lib/a2.png", entries[1].Path)
}

func TestClient_ContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Chat(ctx, ChatRequest{Content: "slow"})
	if err == nil {
		t.Fatal("expected error when context expires")
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(ClientConfig{Logger: log.New(io.Discard, "", 0)})
	c.baseURL = ""

	if err := c.CancelGeneration(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("CancelGeneration() error = %v, want ErrNotConfigured", err)
	}
}
