// Package backend talks to the external collaborators: the inference/RAG
// backend and its speech-to-text, drug-lookup and web-search endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnreachable reports a transport-level failure: the backend could not be
// reached at all, as opposed to answering with a non-success status.
var ErrUnreachable = errors.New("backend unreachable")

// QueryError reports a non-success HTTP status from the query endpoint.
type QueryError struct {
	Status int
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: status %d", e.Status)
}

// Mode selects the persona the backend answers with. It alters backend
// phrasing only, never gateway logic.
const (
	ModeDoctor  = "doctor"
	ModePatient = "patient"
)

// Client is a stateless HTTP client for the inference backend. It keeps a
// very small surface area tailored to the gateway's needs.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ---- Helpers ----

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend %s failed: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ---- Implementations ----

// Query issues one dispatch carrying {query, mode} and returns the raw
// payload for the normalizer. Non-2xx yields *QueryError; transport failure
// yields ErrUnreachable.
func (c *Client) Query(ctx context.Context, query, mode string) (json.RawMessage, error) {
	resp, err := c.postJSON(ctx, "/api/query", map[string]string{"query": query, "mode": mode})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &QueryError{Status: resp.StatusCode}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return raw, nil
}

// Health probes GET /api/health. It reports reachability only; it is used
// as a best-effort diagnostic after a failed dispatch, never as a retry.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe sends a finished audio blob (webm container) to the backend
// speech-to-text endpoint. An empty text result is a valid "no speech
// detected" outcome, not an error.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fw, err := writer.CreateFormFile("audio", "recording.webm")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return out.Text, nil
}

// Drug fetches a single drug record from the backend lookup endpoint.
func (c *Client) Drug(ctx context.Context, name string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/drug/"+url.PathEscape(name), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Interact checks a drug pair against the backend interaction endpoint.
func (c *Client) Interact(ctx context.Context, drugA, drugB string) (json.RawMessage, error) {
	resp, err := c.postJSON(ctx, "/api/interact", map[string]string{"drug_a": drugA, "drug_b": drugB})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("interaction check failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(resp.Body)
}

// SearchResult is one web-search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// Search runs the generic web-search pass-through.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	resp, err := c.postJSON(ctx, "/api/search", map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return out.Results, nil
}
