// Package transcribe uploads recorded audio to the speech-to-text endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/jwulff/speakify/internal/capture"
)

// DefaultTimeout bounds one transcription request.
const DefaultTimeout = 2 * time.Minute

const maxResponseBytes = 1 << 20

// ErrNetwork indicates the request could not complete.
var ErrNetwork = errors.New("transcription request failed")

// FailedError is returned when the service answered without a transcript.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "transcription failed: " + e.Reason
}

// Config configures a Client.
type Config struct {
	// BaseURL is the service root; requests go to BaseURL + "/transcribe".
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTP2 forces an HTTP/2-capable transport.
	HTTP2 bool

	// HTTPClient overrides the client built from the fields above.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to POST /transcribe. It never retries.
type Client struct {
	endpoint string
	token    string
	hc       *http.Client
	logger   *slog.Logger
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcribe: base URL is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.HTTP2 {
			if err := http2.ConfigureTransport(tr); err != nil {
				return nil, fmt.Errorf("configure http2 transport: %w", err)
			}
		}
		hc = &http.Client{Timeout: timeout, Transport: tr}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/transcribe",
		token:    cfg.Token,
		hc:       hc,
		logger:   logger,
	}, nil
}

type response struct {
	Transcript string `json:"transcript"`
	Error      string `json:"error"`
}

// Transcribe uploads blob as the single "file" field and returns the text.
func (c *Client) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, blob.Filename()))
	h.Set("Content-Type", blob.MIME())
	fw, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, blob.Reader()); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	var payload response
	decodeErr := readErr
	if decodeErr == nil {
		decodeErr = json.Unmarshal(raw, &payload)
	}

	c.logger.Debug("transcription response",
		"status", resp.StatusCode,
		"bytes", blob.Len(),
		"digest", blob.Digest(),
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && payload.Error != "" {
			return "", &FailedError{Reason: payload.Error}
		}
		return "", fmt.Errorf("%w: http %d", ErrNetwork, resp.StatusCode)
	}
	if readErr != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrNetwork, readErr)
	}
	if decodeErr != nil {
		return "", &FailedError{Reason: "malformed response"}
	}
	if payload.Transcript == "" {
		reason := payload.Error
		if reason == "" {
			reason = "response has no transcript"
		}
		return "", &FailedError{Reason: reason}
	}
	return payload.Transcript, nil
}
