package synth

import (
	"context"
	"io"
	"net/http"
	"strings"
)

const neetsBaseURL = "https://api.neets.ai"

// NeetsRenderer renders MP3 audio with the Neets TTS API.
type NeetsRenderer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewNeets creates a Neets renderer. An empty baseURL uses the public API.
func NewNeets(apiKey, baseURL string, client *http.Client) *NeetsRenderer {
	if client == nil {
		client = &http.Client{}
	}
	if baseURL == "" {
		baseURL = neetsBaseURL
	}
	return &NeetsRenderer{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      "vits",
		httpClient: client,
	}
}

type neetsRequest struct {
	Text    string      `json:"text"`
	VoiceID string      `json:"voice_id"`
	Params  neetsParams `json:"params"`
}

type neetsParams struct {
	Model string `json:"model"`
}

// Render implements Renderer.
func (n *NeetsRenderer) Render(ctx context.Context, text, voice string, w io.Writer) error {
	if voice == "" {
		voice = "vits-eng-1"
	}
	body := neetsRequest{Text: text, VoiceID: voice, Params: neetsParams{Model: n.model}}
	return post(ctx, n.httpClient, n.baseURL+"/v1/tts", map[string]string{"X-API-Key": n.apiKey}, body, w)
}

// ContentType implements Renderer.
func (n *NeetsRenderer) ContentType() string { return "audio/mpeg" }
