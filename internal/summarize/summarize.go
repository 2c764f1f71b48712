// Package summarize turns proposal metadata and community rationales into
// short human-readable text through a text generation backend.
//
// Generation never fails from the caller's point of view: every backend
// error is logged and replaced by a fixed fallback text.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/present"
)

const (
	// MaxPromptRationales caps how many rationales are quoted in a digest
	// prompt. Extra rationales are still stored, just not summarized.
	MaxPromptRationales = 20

	// MaxDigestRunes caps the generated rationale digest.
	MaxDigestRunes = 500
)

// Fallback texts.
const (
	SummaryFallback = "AI summary generation failed. Please check the proposal details below."
	NoRationales    = "No rationals provided by the community."
)

// ErrUnavailable is returned by Unavailable.
var ErrUnavailable = errors.New("text generation not configured")

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Unavailable is a Generator for runs without generation credentials. Every
// call fails, so callers always get the fallback text.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

// Summarizer wraps a Generator with prompts and fallbacks.
type Summarizer struct {
	gen    Generator
	logger *zap.Logger
}

// New returns a Summarizer backed by gen.
func New(gen Generator, logger *zap.Logger) *Summarizer {
	return &Summarizer{gen: gen, logger: logger.Named("summarize")}
}

// ProposalSummary summarizes a raw proposal for its announcement message.
func (s *Summarizer) ProposalSummary(ctx context.Context, gaid string, raw gov.Raw) string {
	prompt, err := proposalPrompt(raw)
	if err != nil {
		s.logger.Warn("build proposal prompt", zap.String("gaid", gaid), zap.Error(err))
		return SummaryFallback
	}

	text, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("proposal summary generation failed", zap.String("gaid", gaid), zap.Error(err))
		return SummaryFallback
	}
	return text
}

// RationaleDigest condenses the rationales behind a poll outcome. Without
// rationales the generator is not called.
func (s *Summarizer) RationaleDigest(ctx context.Context, gaid string, outcome gov.Option, tally gov.Tally, rationales []gov.Rationale) string {
	if len(rationales) == 0 {
		return NoRationales
	}

	text, err := s.generate(ctx, digestPrompt(outcome, tally, rationales))
	if err != nil {
		s.logger.Warn("rationale digest generation failed", zap.String("gaid", gaid), zap.Error(err))
		return DigestFallback(outcome, len(rationales))
	}
	return present.Truncate(text, MaxDigestRunes)
}

// DigestFallback is used when the digest cannot be generated.
func DigestFallback(outcome gov.Option, n int) string {
	return fmt.Sprintf("The community voted %s based on %d submitted rationals.", outcome, n)
}

func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty generation")
	}
	return text, nil
}
