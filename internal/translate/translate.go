// Package translate turns natural-language questions into candidate SQL via
// a language-model provider. Providers sit behind the Translator interface
// so the pipeline can run against scripted candidates in tests.
package translate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAuthFailed        ErrorKind = "auth_failed"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnavailable       ErrorKind = "unavailable"
)

// Error classifies a translation failure. Timeout, RateLimited, and
// Unavailable are retried inside the provider boundary; AuthFailed and
// MalformedResponse surface immediately.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translation failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// Candidate is the raw statement returned by a provider, with provider
// metadata. It is produced once per pipeline run and consumed by the
// validator.
type Candidate struct {
	SQL      string        `json:"sql"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Latency  time.Duration `json:"latency"`
}

type Translator interface {
	Translate(ctx context.Context, prompt Prompt) (Candidate, error)
}

var sqlStarters = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"create": true, "alter": true, "drop": true, "truncate": true,
	"with": true, "explain": true, "show": true, "pragma": true,
	"values": true, "merge": true,
}

// locateSQL pulls exactly one SQL statement (or explicit multi-statement
// block) out of raw model output. A response with no locatable SQL is a
// malformed response, never empty output.
func locateSQL(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "sql")
		rest = strings.TrimPrefix(rest, "\n")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return "", false
	}
	first := strings.ToLower(firstWord(text))
	if !sqlStarters[first] {
		return "", false
	}
	return text, true
}

func firstWord(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
