package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/twilio/twilio-go/client"
)

const (
	apologyText = "Sorry, something went wrong on our end. Please call again later."

	// signatureHeader carries the provider's request signature.
	signatureHeader = "X-Twilio-Signature"
)

// Recover answers a panic with apology TwiML and ends the call.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if logger != nil {
					logger.Error("panic", "panic", v, "path", r.URL.Path)
				}
				writeTwiML(w, logger, sayAndHangup(apologyText, ""))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if logger == nil {
			return
		}
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"call_id", r.PostForm.Get("CallSid"),
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// VerifySignature rejects webhooks not signed with authToken. publicURL, when
// set, replaces the scheme and host the request arrived on, since a proxy in
// front of us changes both.
func VerifySignature(authToken, publicURL string, logger *slog.Logger, next http.Handler) http.Handler {
	validator := client.NewRequestValidator(authToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		full := requestURL(r, publicURL)
		if !validator.Validate(full, params, r.Header.Get(signatureHeader)) {
			if logger != nil {
				logger.Warn("rejected unsigned webhook", "url", full)
			}
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
