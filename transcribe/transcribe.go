// Package transcribe turns a caller's recorded audio into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/internal/oai"
	"github.com/openai/openai-go/v3"
)

// Transcriber turns a retrievable audio resource into plain text.
// Every failure wraps phonecall.ErrTranscription, including an empty result.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// ErrEmptyTranscript is returned when the audio held no recognizable speech.
var ErrEmptyTranscript = fmt.Errorf("empty transcript: %w", phonecall.ErrTranscription)

// Option configures a Whisper transcriber.
type Option func(*Whisper)

// WithBasicAuth sets credentials sent when downloading recordings.
// Twilio protects recording URLs with the account SID and auth token.
func WithBasicAuth(username, password string) Option {
	return func(w *Whisper) {
		w.username = username
		w.password = password
	}
}

// WithHTTPClient sets the client used to download recordings.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Whisper) { w.httpClient = c }
}

// WithTempDir sets where recordings are staged before upload.
func WithTempDir(dir string) Option {
	return func(w *Whisper) { w.tempDir = dir }
}

// WithModel overrides the transcription model.
func WithModel(model openai.AudioModel) Option {
	return func(w *Whisper) { w.model = model }
}

// Whisper downloads a recording and transcribes it with OpenAI.
type Whisper struct {
	client     openai.Client
	model      openai.AudioModel
	httpClient *http.Client
	username   string
	password   string
	tempDir    string
}

// NewWhisper returns a Whisper transcriber using client.
func NewWhisper(client openai.Client, opts ...Option) *Whisper {
	w := &Whisper{
		client:     client,
		model:      openai.AudioModelWhisper1,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Transcribe implements Transcriber. The recording is staged in a temp file
// that is removed before returning.
func (w *Whisper) Transcribe(ctx context.Context, audioURL string) (string, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return "", fmt.Errorf("recording url is required: %w", phonecall.ErrTranscription)
	}

	f, err := os.CreateTemp(w.tempDir, "recording-*.wav")
	if err != nil {
		return "", fmt.Errorf("stage recording: %w: %w", phonecall.ErrTranscription, err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	contentType, err := w.download(ctx, audioURL, f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind recording: %w: %w", phonecall.ErrTranscription, err)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(f, recordingName(audioURL), contentType),
		Model: w.model,
	})
	if err != nil {
		return "", oai.Wrap("whisper", err, phonecall.ErrTranscription)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (w *Whisper) download(ctx context.Context, audioURL string, dst io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("recording request: %w: %w", phonecall.ErrTranscription, err)
	}
	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", oai.Wrap("download recording", err, phonecall.ErrTranscription)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("download recording: %w: status %d: %s", phonecall.ErrTranscription, resp.StatusCode, strings.TrimSpace(string(body)))
		if oai.RetryableStatus(resp.StatusCode) {
			return "", phonecall.Temporary(err)
		}
		return "", err
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return "", oai.Wrap("read recording", err, phonecall.ErrTranscription)
	}
	if n == 0 {
		return "", fmt.Errorf("download recording: %w: %w", phonecall.ErrTranscription, errors.New("empty body"))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}
	return contentType, nil
}

func recordingName(audioURL string) string {
	name := path.Base(strings.SplitN(audioURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "recording"
	}
	if path.Ext(name) == "" {
		name += ".wav"
	}
	return name
}

var _ Transcriber = (*Whisper)(nil)
