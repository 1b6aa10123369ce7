// Package provideradapter defines the contract every generative-AI answer
// engine plugs into and a registry that dispatches by provider name.
package provideradapter

import (
	"context"
	"time"

	"github.com/citewatch/tracker/internal/model"
)

// RecencyFilter narrows a provider query to recently published sources,
// where the provider supports it.
type RecencyFilter string

const (
	RecencyNone  RecencyFilter = "none"
	RecencyDay   RecencyFilter = "day"
	RecencyWeek  RecencyFilter = "week"
	RecencyMonth RecencyFilter = "month"
)

// Locale narrows a provider query to a language/country pair.
type Locale struct {
	Language string
	Country  string
}

// Options configures one Query call. Unknown fields are ignored by
// adapters that don't support them; zero-value fields take adapter
// defaults.
type Options struct {
	Temperature      float64
	MaxTokens        int
	Timeout          time.Duration
	Locale           Locale
	RecencyFilter    RecencyFilter
	GroundingEnabled bool
}

// RawCitation is one citation as an adapter extracted it, before the
// citation normalizer resolves it against a project's domains.
type RawCitation struct {
	URL     string
	Title   string
	Snippet string
	Rank    int // 1-based, dense, first-seen order
}

// Answer is the uniform result of a successful Query call.
type Answer struct {
	Provider       model.Provider
	Query          string
	ResponseText   string
	Citations      []RawCitation
	ResponseTimeMs int64
}

// BatchQueryItem is one keyword submitted to a BatchAdapter's QueryBatch.
type BatchQueryItem struct {
	ID        string // caller-assigned identifier, echoed back as the result map key
	QueryText string
}

// BatchAdapter is implemented by adapters backed by a provider that
// offers a native bulk/async query API (e.g. Anthropic's Message
// Batches). Registry.Get returns the plain Adapter interface; callers
// that want batch semantics type-assert the result against BatchAdapter
// and fall back to per-item Query when the assertion fails.
type BatchAdapter interface {
	QueryBatch(ctx context.Context, items []BatchQueryItem, opts Options) (map[string]*Answer, error)
}

// ErrorKind classifies why a Query call failed, driving the job-status
// transition described in the error handling design.
type ErrorKind string

const (
	ErrTransport         ErrorKind = "transport"
	ErrAuth              ErrorKind = "auth"
	ErrRateLimited       ErrorKind = "rate_limited"
	ErrQuotaExceeded     ErrorKind = "quota_exceeded"
	ErrTimeout           ErrorKind = "timeout"
	ErrMalformedResponse ErrorKind = "malformed_response"
	ErrUpstreamError     ErrorKind = "upstream_error"
)

// Error is the typed failure a Query call returns instead of (or wrapping)
// a transport error, so callers can decide retriability without sniffing
// error strings.
type Error struct {
	Kind      ErrorKind
	Retriable bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a provider Error, deriving Retriable from Kind per the
// error handling design: transport/timeout/rate_limited retry, the rest
// don't.
func NewError(kind ErrorKind, message string, cause error) *Error {
	retriable := kind == ErrTransport || kind == ErrTimeout || kind == ErrRateLimited
	return &Error{Kind: kind, Retriable: retriable, Message: message, Cause: cause}
}

// HealthStatus is the result of a Healthcheck call.
type HealthStatus struct {
	OK      bool
	Kind    ErrorKind
	Message string
}

// RateLimitStatus reports an adapter's current sliding-window occupancy.
type RateLimitStatus struct {
	Limit   int
	Used    int
	ResetAt time.Time
}

// Adapter is the single interface every provider plugin implements.
type Adapter interface {
	// Name identifies the provider; it is the value persisted on
	// Citation.Platform and TrackingJob.Platform.
	Name() model.Provider
	// Query turns a keyword string into an Answer, applying the
	// adapter's own rate-limit discipline and returning a typed *Error
	// on failure.
	Query(ctx context.Context, queryText string, opts Options) (*Answer, error)
	RateLimitStatus() RateLimitStatus
	Healthcheck(ctx context.Context) HealthStatus
}
