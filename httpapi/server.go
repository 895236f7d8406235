// Package httpapi serves the telephony provider's voice webhooks.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/drewburns/ai-phonecall/config"
	"github.com/drewburns/ai-phonecall/metrics"
	"github.com/drewburns/ai-phonecall/turn"
)

const (
	routeVoice     = "/voice"
	routeSpeech    = "/process_speech"
	routeRecording = "/process_recording"
	routeNoInput   = "/no_input"

	goodbyeText = "I did not hear anything, so I will hang up now. Goodbye."
)

// Turns is the part of turn.Controller the webhooks drive.
type Turns interface {
	HandleInboundCall(ctx context.Context, call turn.Call) turn.Instruction
	HandleUtterance(ctx context.Context, callID, text string) turn.Instruction
	HandleRecording(ctx context.Context, callID, recordingURL string) turn.Instruction
}

type Server struct {
	cfg     config.Config
	turns   Turns
	logger  *slog.Logger
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

func New(cfg config.Config, turns Turns, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		turns:   turns,
		logger:  logger,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.Handle("POST "+routeVoice, s.webhook(routeVoice, s.handleVoice))
	s.mux.Handle("POST "+routeSpeech, s.webhook(routeSpeech, s.handleSpeech))
	s.mux.Handle("POST "+routeRecording, s.webhook(routeRecording, s.handleRecording))
	s.mux.Handle("POST "+routeNoInput, s.webhook(routeNoInput, s.handleNoInput))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = Recover(s.logger, h)
	h = AccessLog(s.logger, h)
	return h
}

// webhook wraps a provider callback with signature checking and metrics.
func (s *Server) webhook(route string, fn http.HandlerFunc) http.Handler {
	var h http.Handler = fn
	if s.cfg.ValidateSignatures {
		h = VerifySignature(s.cfg.TwilioAuthToken, s.cfg.PublicURL, s.logger, h)
	}
	return s.metrics.Middleware(route, h)
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	callID, ok := callSID(w, r)
	if !ok {
		return
	}
	instr := s.turns.HandleInboundCall(r.Context(), turn.Call{
		ID:   callID,
		From: r.PostFormValue("From"),
		To:   r.PostFormValue("To"),
	})
	s.write(w, instr)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	callID, ok := callSID(w, r)
	if !ok {
		return
	}
	instr := s.turns.HandleUtterance(r.Context(), callID, r.PostFormValue("SpeechResult"))
	s.write(w, instr)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	callID, ok := callSID(w, r)
	if !ok {
		return
	}
	instr := s.turns.HandleRecording(r.Context(), callID, r.PostFormValue("RecordingUrl"))
	s.write(w, instr)
}

// handleNoInput ends a call after the caller stayed silent through a prompt.
func (s *Server) handleNoInput(w http.ResponseWriter, r *http.Request) {
	if _, ok := callSID(w, r); !ok {
		return
	}
	writeTwiML(w, s.logger, sayAndHangup(goodbyeText, s.cfg.SayVoice))
}

func (s *Server) write(w http.ResponseWriter, instr turn.Instruction) {
	writeTwiML(w, s.logger, s.render(instr))
}

func callSID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return "", false
	}
	id := strings.TrimSpace(r.PostFormValue("CallSid"))
	if id == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return "", false
	}
	return id, true
}
