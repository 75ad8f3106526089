package alttext

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/portfolio/internal/datauri"
	"github.com/lehigh-university-libraries/portfolio/internal/models"
)

var record = models.ImageRecord{
	ID:       "img-1-0",
	Name:     "headshot.png",
	URL:      datauri.Encode("image/png", []byte("fake-png")),
	Type:     "image/png",
	Category: models.CategoryProfile,
}

func TestOllamaDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model  string   `json:"model"`
			Prompt string   `json:"prompt"`
			Images []string `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
			return
		}
		if body.Model != "llava" {
			t.Errorf("Expected model llava, got %s", body.Model)
		}
		if len(body.Images) != 1 || body.Images[0] != base64.StdEncoding.EncodeToString([]byte("fake-png")) {
			t.Errorf("Image not forwarded: %v", body.Images)
		}
		if !strings.Contains(body.Prompt, "headshot.png") {
			t.Errorf("Prompt should mention the file name: %s", body.Prompt)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": ` "A smiling person in a blue shirt." `})
	}))
	defer server.Close()

	p := &Ollama{BaseURL: server.URL, Client: server.Client()}
	got, err := Suggest(context.Background(), p, record, "llava")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "A smiling person in a blue shirt." {
		t.Errorf("Unexpected suggestion %q", got)
	}
}

func TestOpenAIDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Missing bearer token")
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		encoded, _ := json.Marshal(body)
		if !strings.Contains(string(encoded), "data:image/png;base64,") {
			t.Errorf("Expected a data URI image part: %s", encoded)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "A laptop showing a dashboard."}}},
		})
	}))
	defer server.Close()

	p := &OpenAI{APIKey: "test-key", BaseURL: server.URL, Client: server.Client()}
	got, err := Suggest(context.Background(), p, record, "gpt-4o")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "A laptop showing a dashboard." {
		t.Errorf("Unexpected suggestion %q", got)
	}
}

func TestProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := (&Ollama{BaseURL: server.URL, Client: server.Client()}).Describe(context.Background(), Request{}); err == nil {
		t.Error("Expected an error for a 404")
	}
	if _, err := (&OpenAI{BaseURL: server.URL, Client: server.Client()}).Describe(context.Background(), Request{}); err == nil {
		t.Error("Expected an error without an API key")
	}
	if _, err := (&Gemini{}).Describe(context.Background(), Request{}); err == nil {
		t.Error("Expected an error without an API key")
	}
}

func TestSuggestRejectsRemoteRecords(t *testing.T) {
	remote := record
	remote.URL = "https://cdn.example.com/a.png"
	if _, err := Suggest(context.Background(), &Ollama{}, remote, "llava"); err == nil {
		t.Error("Expected an error for a record without embedded data")
	}
}

func TestNew(t *testing.T) {
	t.Setenv("ALTTEXT_PROVIDER", "")
	for _, name := range Providers {
		if _, err := New(name); err != nil {
			t.Errorf("New(%s): %v", name, err)
		}
	}
	p, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Ollama); !ok {
		t.Errorf("Expected ollama by default, got %T", p)
	}
	if _, err := New("claude"); err == nil {
		t.Error("Expected an error for an unknown provider")
	}

	t.Setenv("OPENAI_MODEL", "")
	if DefaultModel("openai") != "gpt-4o" {
		t.Errorf("Unexpected default model %s", DefaultModel("openai"))
	}
}

func TestImageFormat(t *testing.T) {
	cases := map[string]string{"image/png": "png", "image/webp": "webp", "": "jpeg"}
	for in, want := range cases {
		if got := imageFormat(in); got != want {
			t.Errorf("imageFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
