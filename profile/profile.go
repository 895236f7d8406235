// Package profile resolves the agent persona answering a dialed number:
// the greeting it opens with, its system prompt, and its voice.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrNotFound is returned by a Source that has no profile for a number.
var ErrNotFound = errors.New("profile not found")

// Profile is the persona for one dialed number.
type Profile struct {
	Name         string `json:"name" yaml:"name"`
	Greeting     string `json:"greeting" yaml:"greeting"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	VoiceID      string `json:"voice_id" yaml:"voice_id"`
}

// Source looks up a profile by the dialed phone number.
type Source interface {
	Lookup(ctx context.Context, number string) (Profile, error)
}

// DefaultGreeting is spoken when no profile overrides it.
const DefaultGreeting = "Thanks for calling, how can I help you?"

// Resolver walks its sources in order and fills blank fields from a fallback
// profile. Lookup errors other than ErrNotFound are logged and skipped; a
// broken profile backend must not stop the phone from being answered.
type Resolver struct {
	sources  []Source
	fallback Profile
	logger   *slog.Logger
}

// NewResolver returns a Resolver. A blank fallback greeting becomes
// DefaultGreeting.
func NewResolver(fallback Profile, logger *slog.Logger, sources ...Source) *Resolver {
	if strings.TrimSpace(fallback.Greeting) == "" {
		fallback.Greeting = DefaultGreeting
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sources: sources, fallback: fallback, logger: logger}
}

// Resolve returns the profile for number. It never fails.
func (r *Resolver) Resolve(ctx context.Context, number string) Profile {
	number = NormalizeNumber(number)
	if number != "" {
		for _, src := range r.sources {
			p, err := src.Lookup(ctx, number)
			if err == nil {
				return merge(p, r.fallback)
			}
			if !errors.Is(err, ErrNotFound) {
				r.logger.Warn("profile lookup failed", "number", number, "error", err)
			}
		}
	}
	return r.fallback
}

func merge(p, fallback Profile) Profile {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = fallback.Name
	}
	if strings.TrimSpace(p.Greeting) == "" {
		p.Greeting = fallback.Greeting
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		p.SystemPrompt = fallback.SystemPrompt
	}
	if strings.TrimSpace(p.VoiceID) == "" {
		p.VoiceID = fallback.VoiceID
	}
	return p
}

// NormalizeNumber strips formatting from a phone number, keeping a leading
// plus sign and digits.
func NormalizeNumber(number string) string {
	number = strings.TrimSpace(number)
	var b strings.Builder
	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
