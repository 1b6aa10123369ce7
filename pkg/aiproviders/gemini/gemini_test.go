package gemini

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
)

type fakeClient struct {
	resp *GenerateContentResponse
	err  error
}

func (f *fakeClient) GenerateContent(ctx context.Context, req GenerateContentRequest) (*GenerateContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestAdapter(client Client) *Adapter {
	return &Adapter{client: client, model: defaultModel, limiter: ratelimit.NewWindow(10, time.Minute)}
}

func TestAdapter_Query_GroundedAnswer(t *testing.T) {
	client := &fakeClient{resp: &GenerateContentResponse{Candidates: []Candidate{{
		Content: Content{Parts: []Part{{Text: "Fact one [1]."}}},
		GroundingMetadata: GroundingMetadata{GroundingChunks: []GroundingChunk{
			{Web: WebChunk{URI: "https://a.com", Title: "A"}},
		}},
	}}}}
	a := newTestAdapter(client)

	answer, err := a.Query(context.Background(), "q", provideradapter.Options{})
	require.NoError(t, err)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "https://a.com", answer.Citations[0].URL)
}

func TestAdapter_Query_NoCandidatesIsMalformed(t *testing.T) {
	client := &fakeClient{resp: &GenerateContentResponse{}}
	a := newTestAdapter(client)

	_, err := a.Query(context.Background(), "q", provideradapter.Options{})
	require.Error(t, err)
	var provErr *provideradapter.Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, provideradapter.ErrMalformedResponse, provErr.Kind)
}

func TestAdapter_Query_ClassifiesRateLimitStatus(t *testing.T) {
	client := &fakeClient{err: &StatusError{Code: 429}}
	a := newTestAdapter(client)

	_, err := a.Query(context.Background(), "q", provideradapter.Options{})
	require.Error(t, err)
	var provErr *provideradapter.Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, provideradapter.ErrRateLimited, provErr.Kind)
}
