package chat

import "errors"

var (
	// ErrInvalidInput rejects empty/missing text before the pipeline runs.
	ErrInvalidInput = errors.New("chat: message text is required")

	// ErrRateLimited rejects a request over the per-client quota before
	// any model invocation occurs.
	ErrRateLimited = errors.New("chat: rate limit exceeded")

	// ErrClassificationFailed means the fallback classifier produced no
	// usable category. Fatal for the request, never retried.
	ErrClassificationFailed = errors.New("chat: classification produced no category")

	// ErrUpstreamRateLimited means the generation service signaled
	// throttling. The orchestrator retries these with backoff.
	ErrUpstreamRateLimited = errors.New("chat: upstream rate limited")

	// ErrTimeout means the overall pipeline deadline was exceeded.
	ErrTimeout = errors.New("chat: pipeline deadline exceeded")
)
