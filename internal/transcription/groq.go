// Package transcription turns audio recordings into text using the Groq
// Whisper API (OpenAI-compatible transcriptions endpoint).
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultBaseURL is the production Groq endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Result is one transcription: the text and the recording length in seconds
// when the service reports it.
type Result struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// Client calls the transcriptions endpoint with a bearer credential.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates a Client. An empty baseURL defaults to DefaultBaseURL
// and a nil httpClient to http.DefaultClient.
func NewClient(apiKey, model, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, model: model, http: httpClient}
}

// Transcribe uploads the audio file at path and returns its transcription.
func (c *Client) Transcribe(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Result{}, fmt.Errorf("transcription: build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Result{}, fmt.Errorf("transcription: read audio: %w", err)
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return Result{}, fmt.Errorf("transcription: build form: %w", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Result{}, fmt.Errorf("transcription: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("transcription: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("transcription: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("transcription: decode response: %w", err)
	}
	return result, nil
}
