// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"

	"github.com/axonrt/axon/pkg/errors"
)

// IsOverloaded reports whether err is the overload/rate-limit failure
// class that the fallback policy acts on.
func IsOverloaded(err error) bool {
	return errors.HasCode(err, errors.CodeOverloaded)
}

// Fallback chains a primary (higher-capability) provider with a designated
// fallback. Every call attempts the primary; on an overload-class failure
// it retries exactly once against the fallback. Any other failure, or a
// fallback failure, propagates unchanged. This is a single-retry policy,
// not exponential backoff, to bound latency.
type Fallback struct {
	primary  Provider
	fallback Provider
}

// NewFallback pairs a primary provider with its fallback tier.
func NewFallback(primary, fallback Provider) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

// Generate implements Provider.
func (f *Fallback) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	res, err := f.primary.Generate(ctx, req)
	if err == nil || !IsOverloaded(err) || f.fallback == nil {
		return res, err
	}
	return f.fallback.Generate(ctx, req)
}

// Embed implements Provider. The same single-retry policy applies to
// embedding calls.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := f.primary.Embed(ctx, text)
	if err == nil || !IsOverloaded(err) || f.fallback == nil {
		return vec, err
	}
	return f.fallback.Embed(ctx, text)
}
