package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/articleforge/articleforge/internal/breaker"
	"github.com/articleforge/articleforge/internal/job/model"
	"github.com/articleforge/articleforge/internal/metrics"
	"github.com/articleforge/articleforge/internal/orchestrator"
)

// Service names the breaker registry tracks. They match the breaker
// defaults and double as the label on breaker denial metrics.
const (
	SearchService  = "search-provider"
	AIService      = "ai-provider"
	PublishService = "publish-target"
)

// SearchProvider fetches SERP research for a keyword.
type SearchProvider interface {
	TopResults(ctx context.Context, keyword string) ([]string, error)
}

// ModelProvider generates text from a prompt with the selected model.
type ModelProvider interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Publisher pushes finished content to the publish target and returns
// the published URL.
type Publisher interface {
	Publish(ctx context.Context, title, html string) (string, error)
}

// Result is the success payload a pipeline run resolves with.
type Result struct {
	Title    string `json:"title"`
	HTML     string `json:"html"`
	PostURL  string `json:"postUrl,omitempty"`
	SEOScore int    `json:"seoScore"`
	AEOScore int    `json:"aeoScore"`
}

// Pipeline is the reference content work function. Every provider call
// goes through the circuit breaker registry: denied admission surfaces
// as an ordinary error, which feeds the orchestrator's retry path.
type Pipeline struct {
	search   SearchProvider
	ai       ModelProvider
	pub      Publisher
	breakers *breaker.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a pipeline over the given providers.
func New(search SearchProvider, ai ModelProvider, pub Publisher, breakers *breaker.Registry, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		search:   search,
		ai:       ai,
		pub:      pub,
		breakers: breakers,
		metrics:  m,
		logger:   logger.With("component", "pipeline"),
	}
}

// Run executes one generation or refresh pass. It satisfies
// orchestrator.WorkFunc.
func (p *Pipeline) Run(ctx context.Context, req *model.Request, progress orchestrator.ProgressFunc) (json.RawMessage, error) {
	switch req.Mode {
	case model.ModeGenerate:
		return p.generate(ctx, req, progress)
	case model.ModeRefresh:
		return p.refresh(ctx, req, progress)
	default:
		return nil, fmt.Errorf("unsupported mode: %s", req.Mode)
	}
}

func (p *Pipeline) generate(ctx context.Context, req *model.Request, progress orchestrator.ProgressFunc) (json.RawMessage, error) {
	const total = 8

	progress(1, total, "serp-research")
	var serp []string
	err := p.call(SearchService, func() error {
		var cerr error
		serp, cerr = p.search.TopResults(ctx, req.Keyword)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("serp research: %w", err)
	}

	progress(2, total, "outline")
	outline, err := p.draft(ctx, req.Model, outlinePrompt(req.Keyword, serp))
	if err != nil {
		return nil, fmt.Errorf("outline: %w", err)
	}

	progress(3, total, "draft")
	html, err := p.draft(ctx, req.Model, draftPrompt(req.Keyword, outline))
	if err != nil {
		return nil, fmt.Errorf("draft: %w", err)
	}

	progress(4, total, "seo-score")
	seo := scoreSEO(req.Keyword, html)

	progress(5, total, "aeo-score")
	aeo := scoreAEO(html)

	progress(6, total, "schema")
	html = appendSchema(html, req.Keyword)

	progress(7, total, "meta")
	title := titleFor(req.Keyword, outline)

	progress(8, total, "publish")
	var postURL string
	err = p.call(PublishService, func() error {
		var cerr error
		postURL, cerr = p.pub.Publish(ctx, title, html)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	return json.Marshal(Result{
		Title:    title,
		HTML:     html,
		PostURL:  postURL,
		SEOScore: seo,
		AEOScore: aeo,
	})
}

func (p *Pipeline) refresh(ctx context.Context, req *model.Request, progress orchestrator.ProgressFunc) (json.RawMessage, error) {
	const total = 6

	progress(1, total, "serp-research")
	var serp []string
	err := p.call(SearchService, func() error {
		var cerr error
		serp, cerr = p.search.TopResults(ctx, req.Keyword)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("serp research: %w", err)
	}

	progress(2, total, "analyze-existing")
	gaps := analyzeGaps(req.ExistingContent, serp)

	progress(3, total, "rewrite")
	html, err := p.draft(ctx, req.Model, rewritePrompt(req.Keyword, req.ExistingContent, gaps))
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	progress(4, total, "seo-score")
	seo := scoreSEO(req.Keyword, html)

	progress(5, total, "schema")
	html = appendSchema(html, req.Keyword)

	progress(6, total, "publish")
	var postURL string
	title := titleFor(req.Keyword, "")
	err = p.call(PublishService, func() error {
		var cerr error
		postURL, cerr = p.pub.Publish(ctx, title, html)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	return json.Marshal(Result{
		Title:    title,
		HTML:     html,
		PostURL:  postURL,
		SEOScore: seo,
		AEOScore: scoreAEO(html),
	})
}

// draft runs one model generation through the ai-provider breaker.
func (p *Pipeline) draft(ctx context.Context, modelName, prompt string) (string, error) {
	var out string
	err := p.call(AIService, func() error {
		var cerr error
		out, cerr = p.ai.Generate(ctx, modelName, prompt)
		return cerr
	})
	return out, err
}

// call wraps one provider invocation with breaker admission and outcome
// reporting. A refused call is a transient error like any other; the
// orchestrator's backoff usually outlasts the breaker's recovery window.
func (p *Pipeline) call(service string, fn func() error) error {
	if !p.breakers.Allow(service) {
		if p.metrics != nil {
			p.metrics.BreakerTrips.WithLabelValues(service).Inc()
		}
		p.logger.Warn("call refused by open circuit", "service", service)
		return fmt.Errorf("%s: circuit open, call refused", service)
	}

	if err := fn(); err != nil {
		p.breakers.RecordFailure(service)
		return err
	}
	p.breakers.RecordSuccess(service)
	return nil
}

func outlinePrompt(keyword string, serp []string) string {
	return fmt.Sprintf("Outline an article targeting %q. Competing pages:\n%s", keyword, strings.Join(serp, "\n"))
}

func draftPrompt(keyword, outline string) string {
	return fmt.Sprintf("Write an SEO-optimized article targeting %q following this outline:\n%s", keyword, outline)
}

func rewritePrompt(keyword, existing string, gaps []string) string {
	return fmt.Sprintf("Refresh this article targeting %q, covering: %s\n---\n%s", keyword, strings.Join(gaps, ", "), existing)
}

func titleFor(keyword, outline string) string {
	if i := strings.IndexByte(outline, '\n'); i > 0 {
		if t := strings.TrimSpace(strings.TrimPrefix(outline[:i], "#")); t != "" {
			return t
		}
	}
	if keyword == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(keyword)
	return string(unicode.ToUpper(first)) + keyword[size:]
}

// scoreSEO is a crude keyword-coverage heuristic. The real scoring
// engine lives outside this module; this keeps the payload honest.
func scoreSEO(keyword, html string) int {
	score := 50
	lower := strings.ToLower(html)
	for _, term := range strings.Fields(strings.ToLower(keyword)) {
		if strings.Contains(lower, term) {
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// scoreAEO rewards answer-engine-friendly structure.
func scoreAEO(html string) int {
	score := 40
	for _, marker := range []string{"<h2", "<ul", "<table", "faq"} {
		if strings.Contains(strings.ToLower(html), marker) {
			score += 15
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

func analyzeGaps(existing string, serp []string) []string {
	var gaps []string
	lower := strings.ToLower(existing)
	for _, competitor := range serp {
		if !strings.Contains(lower, strings.ToLower(competitor)) {
			gaps = append(gaps, competitor)
		}
	}
	return gaps
}

func appendSchema(html, keyword string) string {
	schema := fmt.Sprintf(`<script type="application/ld+json">{"@context":"https://schema.org","@type":"Article","about":%q}</script>`, keyword)
	return html + "\n" + schema
}
