package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/observability"
)

type completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// providerTranslator wraps a provider with bounded retries. Transient
// failures back off exponentially; auth failures and malformed responses
// are never retried, and a refusal is surfaced as malformed rather than
// silently treated as empty output.
type providerTranslator struct {
	provider string
	model    string
	impl     completer
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds the configured provider. The OpenAI-compatible provider works
// against any chat-completions endpoint; the Anthropic provider speaks the
// messages API.
func New(cfg config.AIConfig) (Translator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required (set NLQUERY_AI_API_KEY or the provider key variable)")
	}
	model := strings.TrimSpace(cfg.Model)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var impl completer
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		if model == "" {
			model = "gpt-4o"
		}
		impl = &openAICompleter{
			baseURL:     baseURLOr(cfg.BaseURL, "https://api.openai.com"),
			apiKey:      strings.TrimSpace(cfg.APIKey),
			model:       model,
			temperature: cfg.Temperature,
			client:      client,
		}
	case "anthropic", "claude":
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		impl = &anthropicCompleter{
			baseURL: baseURLOr(cfg.BaseURL, "https://api.anthropic.com"),
			apiKey:  strings.TrimSpace(cfg.APIKey),
			model:   model,
			client:  client,
		}
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &providerTranslator{
		provider: strings.ToLower(strings.TrimSpace(cfg.Provider)),
		model:    model,
		impl:     impl,
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepContext,
	}, nil
}

func (t *providerTranslator) Translate(ctx context.Context, prompt Prompt) (Candidate, error) {
	start := time.Now()
	var lastErr *Error
	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			wait := t.backoff << (attempt - 1)
			if err := t.sleep(ctx, wait); err != nil {
				break
			}
		}

		raw, err := t.impl.Complete(ctx, prompt)
		if err != nil {
			lastErr = classifyError(err)
			if !lastErr.retryable() {
				break
			}
			continue
		}

		sqlText, ok := locateSQL(raw)
		if !ok {
			lastErr = &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("no SQL statement in response %q", truncateForError(raw))}
			break
		}
		elapsed := time.Since(start)
		observability.ObserveTranslation(t.provider, "ok", elapsed)
		return Candidate{
			SQL:      sqlText,
			Provider: t.provider,
			Model:    t.model,
			Latency:  elapsed,
		}, nil
	}

	if lastErr == nil {
		lastErr = classifyError(ctx.Err())
	}
	observability.ObserveTranslation(t.provider, string(lastErr.Kind), time.Since(start))
	return Candidate{}, lastErr
}

// httpStatusError carries a provider response status for classification.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, truncateForError(e.body))
}

func classifyError(err error) *Error {
	if err == nil {
		err = errors.New("translation aborted")
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.status == http.StatusUnauthorized || statusErr.status == http.StatusForbidden:
			return &Error{Kind: KindAuthFailed, Err: err}
		case statusErr.status == http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, Err: err}
		case statusErr.status >= 500:
			return &Error{Kind: KindUnavailable, Err: err}
		default:
			return &Error{Kind: KindMalformedResponse, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var translateErr *Error
	if errors.As(err, &translateErr) {
		return translateErr
	}
	return &Error{Kind: KindUnavailable, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func baseURLOr(raw, fallback string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func truncateForError(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200] + "..."
	}
	return body
}
