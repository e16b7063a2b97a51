package transcript

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
	"strconv"
	"strings"
	"time"
)

const WhisperEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// WhisperClient calls an OpenAI-compatible audio transcription endpoint.
type WhisperClient struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	Model      string
}

func NewWhisperClient(apiKey, model string) *WhisperClient {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Endpoint:   WhisperEndpoint,
		APIKey:     apiKey,
		Model:      model,
	}
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Recognize uploads the audio file at path using the settings of p.
func (c *WhisperClient) Recognize(ctx context.Context, path string, p AttemptPolicy) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("whisper api key missing")
	}
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	fd, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	if _, err = io.Copy(fw, fd); err != nil {
		return "", err
	}

	fields := map[string]string{
		"model":           c.Model,
		"response_format": string(p.Format),
		"temperature":     strconv.FormatFloat(p.Temperature, 'f', -1, 64),
	}
	if p.Language != "" {
		fields["language"] = p.Language
	}
	if p.Prompt != "" {
		fields["prompt"] = p.Prompt
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err = w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &b)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if p.Format == FormatVerboseJSON {
		var out verboseResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("whisper decode: %w", err)
		}
		return out.Text, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper read: %w", err)
	}
	return string(body), nil
}
