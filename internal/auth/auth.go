// Package auth provides optional static API key authentication for the
// HTTP service. Keys are opaque strings; there is no identity model beyond
// possession of a configured key.
package auth

import (
	"context"
	"fmt"
	"strings"
)

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) bool
}

type StaticAPIKeyValidator struct {
	keys map[string]bool
}

// NewStaticAPIKeyValidator parses a comma-separated list of keys. An empty
// spec yields a validator that accepts nothing.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]bool{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}
	for _, entry := range strings.Split(spec, ",") {
		key := strings.TrimSpace(entry)
		if key == "" {
			return nil, fmt.Errorf("static key list contains an empty entry")
		}
		validator.keys[key] = true
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) bool {
	return v.keys[apiKey]
}
