package synth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsModel        = "eleven_turbo_v2_5"
)

// ElevenLabsRenderer renders MP3 audio with the ElevenLabs REST API.
type ElevenLabsRenderer struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewElevenLabs creates an ElevenLabs renderer. An empty baseURL uses the
// public API.
func NewElevenLabs(apiKey, baseURL string, client *http.Client) *ElevenLabsRenderer {
	if client == nil {
		client = &http.Client{}
	}
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	return &ElevenLabsRenderer{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Render implements Renderer.
func (e *ElevenLabsRenderer) Render(ctx context.Context, text, voice string, w io.Writer) error {
	if voice == "" {
		voice = elevenLabsDefaultVoice
	}
	endpoint := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice) + "?output_format=mp3_44100_128"
	body := elevenLabsRequest{Text: text, ModelID: elevenLabsModel}
	return post(ctx, e.httpClient, endpoint, map[string]string{"xi-api-key": e.apiKey}, body, w)
}

// ContentType implements Renderer.
func (e *ElevenLabsRenderer) ContentType() string { return "audio/mpeg" }
