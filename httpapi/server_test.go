package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/drewburns/ai-phonecall/config"
	"github.com/drewburns/ai-phonecall/metrics"
	"github.com/drewburns/ai-phonecall/turn"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeTurns struct {
	call      turn.Call
	callID    string
	text      string
	recording string
	instr     turn.Instruction
	panics    bool
}

func (f *fakeTurns) HandleInboundCall(_ context.Context, call turn.Call) turn.Instruction {
	f.call = call
	return f.instr
}

func (f *fakeTurns) HandleUtterance(_ context.Context, callID, text string) turn.Instruction {
	if f.panics {
		panic("boom")
	}
	f.callID, f.text = callID, text
	return f.instr
}

func (f *fakeTurns) HandleRecording(_ context.Context, callID, recordingURL string) turn.Instruction {
	f.callID, f.recording = callID, recordingURL
	return f.instr
}

func testConfig() config.Config {
	return config.Config{
		InputMode:     config.InputSpeech,
		GatherTimeout: 30,
		Language:      "en-US",
		SayVoice:      "alice",
	}
}

func newTestServer(cfg config.Config, turns Turns) (*Server, *metrics.Metrics) {
	m := metrics.New("test")
	return New(cfg, turns, slog.New(slog.NewJSONHandler(io.Discard, nil)), m), m
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// startTag returns the opening tag of the first name element in body, or ""
// when there is none. Attribute order is not significant in TwiML.
func startTag(body, name string) string {
	i := strings.Index(body, "<"+name)
	if i < 0 {
		return ""
	}
	j := strings.Index(body[i:], ">")
	if j < 0 {
		return ""
	}
	return body[i : i+j+1]
}

func assertAttrs(t *testing.T, body, name string, attrs map[string]string) {
	t.Helper()
	tag := startTag(body, name)
	if tag == "" {
		t.Fatalf("no <%s> in %s", name, body)
	}
	for k, v := range attrs {
		if !strings.Contains(tag, " "+k+`="`+v+`"`) {
			t.Fatalf("%s missing %s=%q", tag, k, v)
		}
	}
}

// sign computes the request signature Twilio sends for a form POST to fullURL.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVoiceWebhookPlaysGreetingThenGathers(t *testing.T) {
	turns := &fakeTurns{instr: turn.Instruction{PlayURL: "https://storage.example/greeting.mp3", Listen: true}}
	s, m := newTestServer(testConfig(), turns)

	rr := postForm(t, s.Handler(), "/voice", url.Values{
		"CallSid": {"CA1"},
		"From":    {"+15550001"},
		"To":      {"+15550002"},
	}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != contentType {
		t.Fatalf("content-type=%q", ct)
	}
	if turns.call != (turn.Call{ID: "CA1", From: "+15550001", To: "+15550002"}) {
		t.Fatalf("call = %+v", turns.call)
	}

	body := rr.Body.String()
	play := strings.Index(body, ">https://storage.example/greeting.mp3</Play>")
	gather := strings.Index(body, "<Gather")
	redirect := strings.Index(body, ">/no_input</Redirect>")
	if play < 0 || gather < 0 || redirect < 0 {
		t.Fatalf("unexpected body: %s", body)
	}
	if !(play < gather && gather < redirect) {
		t.Fatalf("verbs out of order: %s", body)
	}
	assertAttrs(t, body, "Gather", map[string]string{
		"input":         "speech",
		"timeout":       "30",
		"speechTimeout": "auto",
		"language":      "en-US",
		"action":        "/process_speech",
		"method":        "POST",
	})
	assertAttrs(t, body, "Redirect", map[string]string{"method": "POST"})
	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/voice", "200")); v != 1 {
		t.Fatalf("requests = %v, want 1", v)
	}
}

func TestSpeechWebhookPassesUtterance(t *testing.T) {
	turns := &fakeTurns{instr: turn.Instruction{PlayURL: "https://storage.example/reply.mp3", Listen: true}}
	s, _ := newTestServer(testConfig(), turns)

	rr := postForm(t, s.Handler(), "/process_speech", url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"hello"},
	}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if turns.callID != "CA1" || turns.text != "hello" {
		t.Fatalf("got call %q text %q", turns.callID, turns.text)
	}
	if !strings.Contains(rr.Body.String(), ">https://storage.example/reply.mp3</Play>") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestFallbackInstructionIsSpoken(t *testing.T) {
	turns := &fakeTurns{instr: turn.Instruction{Say: "Sorry, try again.", Listen: true, Fallback: "completion"}}
	s, _ := newTestServer(testConfig(), turns)

	rr := postForm(t, s.Handler(), "/process_speech", url.Values{"CallSid": {"CA1"}}, nil)

	body := rr.Body.String()
	if !strings.Contains(body, ">Sorry, try again.</Say>") {
		t.Fatalf("unexpected body: %s", body)
	}
	assertAttrs(t, body, "Say", map[string]string{"voice": "alice"})
	if strings.Contains(body, "<Play") || !strings.Contains(body, "<Gather") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRecordingModeRecords(t *testing.T) {
	cfg := testConfig()
	cfg.InputMode = config.InputRecording
	cfg.PublicURL = "https://calls.example.com"
	turns := &fakeTurns{instr: turn.Instruction{PlayURL: "https://storage.example/reply.mp3", Listen: true}}
	s, _ := newTestServer(cfg, turns)

	rr := postForm(t, s.Handler(), "/process_recording", url.Values{
		"CallSid":      {"CA1"},
		"RecordingUrl": {"https://api.twilio.com/recordings/RE1"},
	}, nil)

	if turns.recording != "https://api.twilio.com/recordings/RE1" {
		t.Fatalf("recording = %q", turns.recording)
	}
	body := rr.Body.String()
	assertAttrs(t, body, "Record", map[string]string{
		"action":    "https://calls.example.com/process_recording",
		"method":    "POST",
		"playBeep":  "false",
		"maxLength": "60",
		"trim":      "trim-silence",
	})
	assertAttrs(t, body, "Redirect", map[string]string{"method": "POST"})
	if !strings.Contains(body, ">https://calls.example.com/no_input</Redirect>") {
		t.Fatalf("unexpected redirect: %s", body)
	}
	if strings.Contains(body, "<Gather") {
		t.Fatalf("unexpected gather: %s", body)
	}
}

func TestNoInputHangsUp(t *testing.T) {
	s, _ := newTestServer(testConfig(), &fakeTurns{})

	rr := postForm(t, s.Handler(), "/no_input", url.Values{"CallSid": {"CA1"}}, nil)

	body := rr.Body.String()
	if !strings.Contains(body, goodbyeText) || !strings.Contains(body, "<Hangup") {
		t.Fatalf("unexpected body: %s", body)
	}
	if strings.Index(body, goodbyeText) > strings.Index(body, "<Hangup") {
		t.Fatalf("hangup before goodbye: %s", body)
	}
}

func TestMissingCallSidRejected(t *testing.T) {
	turns := &fakeTurns{}
	s, _ := newTestServer(testConfig(), turns)

	rr := postForm(t, s.Handler(), "/process_speech", url.Values{"SpeechResult": {"hello"}}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if turns.text != "" {
		t.Fatal("controller should not be called")
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	s, _ := newTestServer(testConfig(), &fakeTurns{})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voice", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestPanicReturnsApologyTwiML(t *testing.T) {
	s, _ := newTestServer(testConfig(), &fakeTurns{panics: true})

	rr := postForm(t, s.Handler(), "/process_speech", url.Values{"CallSid": {"CA1"}}, nil)

	if ct := rr.Header().Get("Content-Type"); ct != contentType {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), apologyText) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestSignatureValidation(t *testing.T) {
	cfg := testConfig()
	cfg.ValidateSignatures = true
	cfg.TwilioAuthToken = "secret"
	cfg.PublicURL = "https://calls.example.com"
	turns := &fakeTurns{instr: turn.Instruction{Say: "hi", Listen: true}}
	s, _ := newTestServer(cfg, turns)

	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello"}}
	sig := sign("secret", "https://calls.example.com/process_speech", form)

	tests := []struct {
		name      string
		signature string
		want      int
	}{
		{name: "valid", signature: sig, want: http.StatusOK},
		{name: "wrong", signature: "bm90IGEgc2lnbmF0dXJl", want: http.StatusForbidden},
		{name: "other token", signature: sign("other", "https://calls.example.com/process_speech", form), want: http.StatusForbidden},
		{name: "other url", signature: sign("secret", "https://evil.example.com/process_speech", form), want: http.StatusForbidden},
		{name: "missing", signature: "", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.signature != "" {
				header.Set(signatureHeader, tt.signature)
			}
			rr := postForm(t, s.Handler(), "/process_speech", form, header)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%q", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSignatureMatchesPublishedExample(t *testing.T) {
	form := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
	want := "0/KCTR6DLpKmkAf8muzZqo1nDgQ="
	if got := sign("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", form); got != want {
		t.Fatalf("sign = %q, want %q", got, want)
	}

	handler := VerifySignature("12345", "https://mycompany.com", nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/myapp.php?foo=1&bar=2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, want)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestRequestURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://internal:8080/voice?x=1", nil)
	if got := requestURL(req, ""); got != "http://internal:8080/voice?x=1" {
		t.Fatalf("requestURL = %q", got)
	}
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := requestURL(req, ""); got != "https://internal:8080/voice?x=1" {
		t.Fatalf("requestURL = %q", got)
	}
	if got := requestURL(req, "https://calls.example.com"); got != "https://calls.example.com/voice?x=1" {
		t.Fatalf("requestURL = %q", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(testConfig(), &fakeTurns{})

	for _, path := range []string{"/healthz", "/metrics"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}
