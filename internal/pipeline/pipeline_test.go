package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articleforge/articleforge/internal/breaker"
	"github.com/articleforge/articleforge/internal/job/model"
)

type tick struct {
	step  int
	total int
	name  string
}

func collectProgress(ticks *[]tick) func(int, int, string) {
	return func(step, total int, name string) {
		*ticks = append(*ticks, tick{step, total, name})
	}
}

func testPipeline(pub Publisher) (*Pipeline, *breaker.Registry) {
	breakers := breaker.NewRegistry(breaker.DefaultSettings())
	p := New(
		&StubSearch{},
		&StubModel{},
		pub,
		breakers,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return p, breakers
}

func TestGeneratePipeline(t *testing.T) {
	p, _ := testPipeline(&StubPublisher{})

	var ticks []tick
	req := &model.Request{
		Keyword:   "standing desk",
		Mode:      model.ModeGenerate,
		RequestID: "r1",
		ClientID:  "c1",
	}

	raw, err := p.Run(context.Background(), req, collectProgress(&ticks))
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.NotEmpty(t, result.Title)
	assert.Contains(t, result.HTML, "schema.org")
	assert.Contains(t, result.PostURL, "https://example.com/posts/")
	assert.Greater(t, result.SEOScore, 0)
	assert.Greater(t, result.AEOScore, 0)

	require.Len(t, ticks, 8)
	assert.Equal(t, tick{1, 8, "serp-research"}, ticks[0])
	assert.Equal(t, tick{8, 8, "publish"}, ticks[7])
	for i, tk := range ticks {
		assert.Equal(t, i+1, tk.step)
		assert.Equal(t, 8, tk.total)
	}
}

func TestRefreshPipeline(t *testing.T) {
	p, _ := testPipeline(&StubPublisher{})

	var ticks []tick
	req := &model.Request{
		Keyword:         "standing desk",
		Mode:            model.ModeRefresh,
		ExistingContent: "<p>an older take on desks</p>",
		RequestID:       "r1",
		ClientID:        "c1",
	}

	raw, err := p.Run(context.Background(), req, collectProgress(&ticks))
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.NotEmpty(t, result.HTML)

	require.Len(t, ticks, 6)
	assert.Equal(t, "analyze-existing", ticks[1].name)
	assert.Equal(t, tick{6, 6, "publish"}, ticks[5])
}

func TestUnsupportedMode(t *testing.T) {
	p, _ := testPipeline(&StubPublisher{})

	req := &model.Request{Keyword: "x", Mode: "translate", RequestID: "r1", ClientID: "c1"}
	_, err := p.Run(context.Background(), req, func(int, int, string) {})
	assert.ErrorContains(t, err, "unsupported mode")
}

func TestPublisherFailureFeedsBreaker(t *testing.T) {
	p, breakers := testPipeline(FailingPublisher{})
	req := &model.Request{
		Keyword:   "standing desk",
		Mode:      model.ModeGenerate,
		RequestID: "r1",
		ClientID:  "c1",
	}
	noop := func(int, int, string) {}

	// publish-target trips at 2 consecutive failures.
	_, err := p.Run(context.Background(), req, noop)
	assert.ErrorContains(t, err, "publish")

	_, err = p.Run(context.Background(), req, noop)
	assert.ErrorContains(t, err, "publish")

	// Third run: the breaker refuses admission before the call.
	_, err = p.Run(context.Background(), req, noop)
	assert.ErrorContains(t, err, "circuit open")

	// The denial is an ordinary error; the search and ai breakers are
	// unaffected and stay closed.
	for _, s := range breakers.Snapshot() {
		switch s.Service {
		case PublishService:
			assert.Equal(t, breaker.Open, s.Status)
		default:
			assert.Equal(t, breaker.Closed, s.Status)
		}
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "standing-desk-guide", slug("Standing Desk Guide"))
	assert.Equal(t, "top-10-desks", slug("Top 10 Desks!"))
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, "Outline Heading", titleFor("kw", "# Outline Heading\nbody"))
	assert.Equal(t, "Standing desk", titleFor("standing desk", ""))
	// Multi-byte first rune must stay valid UTF-8.
	assert.Equal(t, "Éclair recipe", titleFor("éclair recipe", ""))
	assert.Equal(t, "", titleFor("", ""))
}
