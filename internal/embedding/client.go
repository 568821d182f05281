package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

const defaultInitialDelay = 500 * time.Millisecond

// Cache stores successful embeddings. Zero-vector fallbacks are never cached.
type Cache interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, model, text string, vec []float32, ttl time.Duration) error
}

type Config struct {
	APIURL       string
	APIKey       string
	Model        string
	Dimension    int
	Timeout      time.Duration
	MaxRetries   int
	CacheTTL     time.Duration
	InitialDelay time.Duration
}

// Client calls an OpenAI-compatible embeddings endpoint
type Client struct {
	cfg    Config
	http   *http.Client
	cache  Cache
	logger *zap.Logger
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// failure carries the metric label for a failed attempt.
type failure struct {
	reason    string
	retryable bool
	err       error
}

func (f *failure) Error() string { return f.reason + ": " + f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

// NewClient creates an embedding client. cache may be nil.
func NewClient(cfg Config, cache Cache) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Dimension is the configured vector length every result has.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// Embed returns the embedding of text. It never fails: on any provider error,
// timeout or malformed response it returns a zero vector and degraded=true.
func (c *Client) Embed(ctx context.Context, text string) (vec []float32, degraded bool) {
	ctx, span := util.StartSpan(ctx, "EmbeddingClient.Embed")
	defer span.End()

	if c.cache != nil {
		cached, ok, err := c.cache.GetEmbedding(ctx, c.cfg.Model, text)
		if err != nil {
			c.logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok && len(cached) == c.cfg.Dimension {
			util.EmbeddingCacheHits.Inc()
			return cached, false
		}
	}

	vec, err := c.fetch(ctx, text)
	if err != nil {
		reason := "unknown"
		var f *failure
		if errors.As(err, &f) {
			reason = f.reason
		}
		util.RecordError(span, err)
		util.EmbeddingFallbackTotal.WithLabelValues(reason).Inc()
		c.logger.Warn("Embedding unavailable, using zero vector",
			zap.String("reason", reason),
			zap.Int("text_length", len(text)),
			zap.Error(err))
		return make([]float32, c.cfg.Dimension), true
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, c.cfg.Model, text, vec, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}
	return vec, false
}

func (c *Client) fetch(ctx context.Context, text string) ([]float32, error) {
	if c.cfg.APIKey == "" {
		return nil, &failure{reason: "no_api_key", err: errors.New("EMBEDDING_API_KEY not set")}
	}

	body, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: text})
	if err != nil {
		return nil, &failure{reason: "encode", err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.InitialDelay << (attempt - 1)
			if !c.fitsDeadline(ctx, delay) {
				break
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &failure{reason: "cancelled", err: ctx.Err()}
			}
		}

		vec, err := c.attempt(ctx, body)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		var f *failure
		if errors.As(err, &f) && !f.retryable {
			return nil, err
		}
	}

	return nil, lastErr
}

// fitsDeadline reports whether a backoff of delay plus one full attempt ends
// before ctx's deadline. Retries that cannot finish are not started.
func (c *Client) fitsDeadline(ctx context.Context, delay time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= delay+c.cfg.Timeout
}

func (c *Client) attempt(ctx context.Context, body []byte) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, &failure{reason: "request", err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	util.EmbeddingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "network"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return nil, &failure{reason: reason, retryable: true, err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &failure{reason: "network", retryable: true, err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		reason := "status"
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			reason = "auth"
		}
		return nil, &failure{
			reason:    reason,
			retryable: retryable,
			err:       fmt.Errorf("embedding API error (%d): %s", resp.StatusCode, msg),
		}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &failure{reason: "decode", err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, &failure{reason: "empty", err: errors.New("no embedding in response")}
	}

	vec := parsed.Data[0].Embedding
	if len(vec) != c.cfg.Dimension {
		return nil, &failure{
			reason: "dimension",
			err:    fmt.Errorf("expected %d dimensions, got %d", c.cfg.Dimension, len(vec)),
		}
	}
	return vec, nil
}
