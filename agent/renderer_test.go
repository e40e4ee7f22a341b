package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticTokens string

func (t staticTokens) Token(ctx context.Context) (string, error) { return string(t), nil }

func TestRenderClient(t *testing.T) {
	var gotAuth string
	var gotReq renderRequest
	animator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"signed_url": "https://storage.example/out.glb"})
	}))
	defer animator.Close()

	client := NewRenderClient(animator.URL, staticTokens("tok-123"))
	url, err := client.Render(context.Background(), "thread-1", "a cube", "import bpy")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if url != "https://storage.example/out.glb" {
		t.Errorf("url = %q", url)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReq.Script != "import bpy" || gotReq.ThreadID != "thread-1" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestRenderClientErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"service error", http.StatusInternalServerError, `{"error": "blender failed"}`, "blender failed"},
		{"error on 200", http.StatusOK, `{"error": "blender crashed on frame 3"}`, "blender crashed on frame 3"},
		{"error beside url", http.StatusOK, `{"error": "export incomplete", "signed_url": "https://storage.example/out.glb"}`, "export incomplete"},
		{"non-json body", http.StatusBadGateway, "upstream exploded", "502"},
		{"ok but empty", http.StatusOK, `{}`, "no signed URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			animator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer animator.Close()

			client := NewRenderClient(animator.URL, nil)
			_, err := client.Render(context.Background(), "t", "p", "import bpy")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
