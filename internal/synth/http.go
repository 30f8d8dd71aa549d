package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	// maxErrorBody bounds how much of an error response gets read for the
	// failure reason.
	maxErrorBody = 2048

	defaultRequestTimeout = 60 * time.Second
)

// HTTPSynthesizer calls a remote synthesis service. Requests are rate
// limited client-side so a long download run cannot hammer the service.
type HTTPSynthesizer struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSynthesizer creates a client for the service at baseURL, allowing
// at most requestsPerSecond calls (with a small burst).
func NewHTTPSynthesizer(baseURL string, requestsPerSecond float64) *HTTPSynthesizer {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &HTTPSynthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultRequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 2),
	}
}

type synthesizeRequest struct {
	ItemID     string `json:"item_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	Mock       bool   `json:"mock"`
}

// Synthesize posts the chunk to the service and returns its audio.
func (h *HTTPSynthesizer) Synthesize(ctx context.Context, req Request) (*Payload, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, NewError("synthesis canceled while rate limited", err)
	}

	body, err := json.Marshal(synthesizeRequest{
		ItemID:     req.ItemID,
		ChunkIndex: req.ChunkIndex,
		Text:       req.Text,
		Voice:      req.Voice,
		Mock:       req.Mock,
	})
	if err != nil {
		return nil, NewError("encode synthesis request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, NewError("build synthesis request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, NewError(fmt.Sprintf("synthesis service unreachable: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewError(fmt.Sprintf("synthesis service returned %d: %s", resp.StatusCode, reason), nil)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError("read synthesis response", err)
	}

	log.Debug("synthesized chunk",
		"item", req.ItemID,
		"chunk", req.ChunkIndex,
		"bytes", len(audio),
		"elapsed", time.Since(start))

	return &Payload{
		Audio:       audio,
		ContentType: resp.Header.Get("Content-Type"),
		Mock:        req.Mock || resp.Header.Get("X-Readflow-Mock") == "1",
	}, nil
}
