package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(h http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	return NewClient(srv.URL, 5*time.Second), srv
}

func TestQuery_PostsQueryAndMode(t *testing.T) {
	var gotBody map[string]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/query" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary": "ok", "disclaimer": "d"}`))
	})
	defer srv.Close()

	raw, err := c.Query(context.Background(), "Can a patient take Metformin with Ibuprofen?", "doctor")
	if err != nil {
		t.Fatal(err)
	}
	if gotBody["query"] != "Can a patient take Metformin with Ibuprofen?" || gotBody["mode"] != "doctor" {
		t.Errorf("posted body = %v", gotBody)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("raw payload not JSON: %v", err)
	}
}

func TestQuery_NonSuccessStatus(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := c.Query(context.Background(), "anything", "doctor")
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("error = %v, want *QueryError", err)
	}
	if qe.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", qe.Status)
	}
}

func TestQuery_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, 2*time.Second)
	_, err := c.Query(context.Background(), "anything", "doctor")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestHealth(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if !c.Health(context.Background()) {
		t.Error("healthy backend reported unreachable")
	}
	srv.Close()
	if c.Health(context.Background()) {
		t.Error("closed backend reported healthy")
	}

	c2, srv2 := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv2.Close()
	if c2.Health(context.Background()) {
		t.Error("500 must not count as healthy")
	}
}

func TestTranscribe_MultipartAudioField(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("invalid multipart form: %v", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("audio field missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "recording.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		b, _ := io.ReadAll(file)
		if string(b) != "webm-bytes" {
			t.Errorf("audio payload = %q", b)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	})
	defer srv.Close()

	text, err := c.Transcribe(context.Background(), []byte("webm-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want hello", text)
	}
}

func TestTranscribe_EmptyTextIsNotAnError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": ""})
	})
	defer srv.Close()

	text, err := c.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty transcript must be valid: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestTranscribe_NonSuccessStatus(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "speech model down", http.StatusBadGateway)
	})
	defer srv.Close()

	if _, err := c.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Error("expected error on 502")
	}
}

func TestSearch(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["query"] != "metformin studies" {
			t.Errorf("query = %q", body["query"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "t1", "link": "https://example.org", "snippet": "s1", "source": "pubmed"},
			},
		})
	})
	defer srv.Close()

	results, err := c.Search(context.Background(), "metformin studies")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Source != "pubmed" {
		t.Errorf("results = %+v", results)
	}
}

func TestInteract(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["drug_a"] != "Metformin" || body["drug_b"] != "Ibuprofen" {
			t.Errorf("body = %v", body)
		}
		_, _ = w.Write([]byte(`{"severity": "MODERATE"}`))
	})
	defer srv.Close()

	raw, err := c.Interact(context.Background(), "Metformin", "Ibuprofen")
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil || out["severity"] != "MODERATE" {
		t.Errorf("raw = %s, err = %v", raw, err)
	}
}
