package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientUploadSendsQuery(t *testing.T) {
	var gotQuery map[string]string
	var gotBody []byte
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(UploadResponse{Status: "success", FileID: "65a1b2c3d4e5f60718293a4b", Size: int64(len(gotBody))})
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	resp, err := client.Upload(context.Background(), Namespace{DB: "Recorder"}, bytes.NewReader([]byte("pcm")), UploadRequest{
		Filename: "clip.raw",
		Metadata: map[string]string{"device": "esp32"},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.FileID != "65a1b2c3d4e5f60718293a4b" || resp.Size != 3 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if string(gotBody) != "pcm" || gotType != "application/octet-stream" {
		t.Fatalf("unexpected body %q type %q", gotBody, gotType)
	}
	want := map[string]string{"db": "Recorder", "filename": "clip.raw", "meta.device": "esp32"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s: got %q, want %q", k, gotQuery[k], v)
		}
	}
	if _, ok := gotQuery["collection"]; ok {
		t.Fatal("empty collection must not be sent")
	}
}

func TestClientDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("file_id") != "65a1b2c3d4e5f60718293a4b" || r.URL.Query().Get("format") != "wav" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="clip.wav"`)
		w.Header().Set("Content-Length", "5")
		_, _ = w.Write([]byte("RIFF!"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	result, err := NewClient(srv.URL).Download(context.Background(), Namespace{}, "65a1b2c3d4e5f60718293a4b", "wav", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if result.Filename != "clip.wav" || result.ContentType != "audio/wav" || result.Size != 5 || result.Written != 5 {
		t.Fatalf("unexpected result %#v", result)
	}
	if buf.String() != "RIFF!" {
		t.Fatalf("unexpected body %q", buf.String())
	}
}

func TestClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "No file found with ID: x", Code: "not_found", ErrorCode: 2001})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Download(context.Background(), Namespace{}, "65a1b2c3d4e5f60718293a4b", "", io.Discard)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.ErrorCode != 2001 || apiErr.Code != "not_found" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestClientListAndInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list":
			if r.URL.Query().Get("collection") != "clips" {
				t.Errorf("expected collection query, got %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(ListResponse{Files: []FileEntry{{FileID: "a", Length: 3}}})
		case "/info":
			_ = json.NewEncoder(w).Encode(InfoResponse{Backend: "sqlite", ChunkSize: 262144})
		case "/health":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	list, err := client.List(context.Background(), Namespace{Collection: "clips"})
	if err != nil || len(list.Files) != 1 || list.Files[0].Length != 3 {
		t.Fatalf("unexpected list %#v (%v)", list, err)
	}
	info, err := client.GetInfo(context.Background())
	if err != nil || info.Backend != "sqlite" {
		t.Fatalf("unexpected info %#v (%v)", info, err)
	}
}
