// Package synth renders assistant replies to audio, parks the audio in
// object storage and hands back a signed URL the telephony provider can play.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/objectstore"
)

// DefaultURLTTL is how long a playback URL stays valid. It only has to
// outlive the gap between returning markup and the provider fetching audio.
const DefaultURLTTL = 10 * time.Minute

// Renderer writes speech audio for text to w.
type Renderer interface {
	Render(ctx context.Context, text, voice string, w io.Writer) error
	ContentType() string
}

// Artifact is one uploaded rendering.
type Artifact struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// Synthesizer turns reply text into a playable URL.
// Failures wrap phonecall.ErrSynthesis.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Artifact, error)
}

// Option configures a Service.
type Option func(*Service)

// WithURLTTL sets the signed URL lifetime.
func WithURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.urlTTL = ttl
		}
	}
}

// WithTempDir sets the directory audio is staged in. Empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tempDir = dir }
}

// WithKeyPrefix sets the object key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Service) { s.keyPrefix = prefix }
}

// Service is the default Synthesizer: render to a temp file, upload, sign.
type Service struct {
	renderer  Renderer
	store     objectstore.Store
	urlTTL    time.Duration
	tempDir   string
	keyPrefix string
	now       func() time.Time
}

// New returns a Service rendering with r and uploading to store.
func New(r Renderer, store objectstore.Store, opts ...Option) *Service {
	s := &Service{
		renderer:  r,
		store:     store,
		urlTTL:    DefaultURLTTL,
		keyPrefix: "tts/",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize implements Synthesizer. The staging file is removed on every
// return path.
func (s *Service) Synthesize(ctx context.Context, text, voice string) (Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Artifact{}, fmt.Errorf("nothing to synthesize: %w", phonecall.ErrSynthesis)
	}

	f, err := os.CreateTemp(s.tempDir, "tts-*.audio")
	if err != nil {
		return Artifact{}, fmt.Errorf("stage audio: %w: %w", phonecall.ErrSynthesis, err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := s.renderer.Render(ctx, text, voice, f); err != nil {
		return Artifact{}, fmt.Errorf("render: %w: %w", phonecall.ErrSynthesis, err)
	}

	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return Artifact{}, fmt.Errorf("stage audio: %w: %w", phonecall.ErrSynthesis, err)
	}
	if size == 0 {
		return Artifact{}, fmt.Errorf("render: %w: %w", phonecall.ErrSynthesis, errors.New("no audio returned"))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Artifact{}, fmt.Errorf("stage audio: %w: %w", phonecall.ErrSynthesis, err)
	}

	now := s.now()
	key := s.keyPrefix + NewKey(now, extensionFor(s.renderer.ContentType()))

	if err := s.store.Put(ctx, key, f, s.renderer.ContentType()); err != nil {
		return Artifact{}, fmt.Errorf("upload: %w: %w", phonecall.ErrSynthesis, err)
	}

	url, err := s.store.SignedURL(ctx, key, s.urlTTL)
	if err != nil {
		// Nothing will ever reference the object.
		_ = s.store.Delete(context.WithoutCancel(ctx), key)
		return Artifact{}, fmt.Errorf("sign url: %w: %w", phonecall.ErrSynthesis, err)
	}

	return Artifact{URL: url, Key: key, ExpiresAt: now.Add(s.urlTTL)}, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".mp3"
	}
}

var _ Synthesizer = (*Service)(nil)
