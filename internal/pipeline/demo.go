package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Stub providers for dev mode and tests. They simulate latency and
// produce deterministic output; the real SERP/LLM/WordPress clients
// are wired in by the deployment, not this module.

// StubSearch returns canned competitor pages after a simulated delay.
type StubSearch struct {
	Delay time.Duration
}

func (s *StubSearch) TopResults(ctx context.Context, keyword string) ([]string, error) {
	if err := wait(ctx, s.Delay); err != nil {
		return nil, err
	}
	return []string{
		"The complete guide to " + keyword,
		keyword + " best practices",
		"How to choose " + keyword,
	}, nil
}

// StubModel echoes a deterministic draft after a simulated delay.
type StubModel struct {
	Delay time.Duration
}

func (s *StubModel) Generate(ctx context.Context, model, prompt string) (string, error) {
	if err := wait(ctx, s.Delay); err != nil {
		return "", err
	}
	return fmt.Sprintf("<h2>Generated by %s</h2>\n<p>%.80s...</p>", orDefault(model, "default-model"), prompt), nil
}

// StubPublisher pretends to publish and returns a fake post URL.
type StubPublisher struct {
	Delay time.Duration
}

func (s *StubPublisher) Publish(ctx context.Context, title, html string) (string, error) {
	if err := wait(ctx, s.Delay); err != nil {
		return "", err
	}
	return "https://example.com/posts/" + slug(title), nil
}

// FailingPublisher always rejects. Used to exercise the retry and
// breaker paths end to end.
type FailingPublisher struct{}

func (FailingPublisher) Publish(ctx context.Context, title, html string) (string, error) {
	return "", fmt.Errorf("publish target rejected the post")
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func slug(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+'a'-'A')
		case r == ' ' || r == '-':
			out = append(out, '-')
		}
	}
	return string(out)
}
