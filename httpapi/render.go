package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/drewburns/ai-phonecall/config"
	"github.com/drewburns/ai-phonecall/turn"
	"github.com/twilio/twilio-go/twiml"
)

// contentType is the media type TwiML responses are served with.
const contentType = "application/xml"

// render turns an instruction into TwiML verbs. Audio is played when there
// is a URL, otherwise the text is spoken by the provider. A listening
// instruction ends with a <Gather> or <Record> whose result posts back to
// us, then a redirect that only runs when the caller said nothing.
func (s *Server) render(instr turn.Instruction) []twiml.Element {
	var verbs []twiml.Element

	switch {
	case instr.PlayURL != "":
		verbs = append(verbs, &twiml.VoicePlay{Url: instr.PlayURL})
	case instr.Say != "":
		verbs = append(verbs, &twiml.VoiceSay{Message: instr.Say, Voice: s.cfg.SayVoice})
	}

	if !instr.Listen {
		return append(verbs, &twiml.VoiceHangup{})
	}

	if s.cfg.InputMode == config.InputRecording {
		verbs = append(verbs, &twiml.VoiceRecord{
			Action:    s.url(routeRecording),
			Method:    http.MethodPost,
			Timeout:   "3",
			MaxLength: "60",
			PlayBeep:  "false",
			Trim:      "trim-silence",
		})
	} else {
		verbs = append(verbs, &twiml.VoiceGather{
			Input:         "speech",
			Timeout:       strconv.Itoa(s.cfg.GatherTimeout),
			SpeechTimeout: "auto",
			Language:      s.cfg.Language,
			Action:        s.url(routeSpeech),
			Method:        http.MethodPost,
		})
	}
	return append(verbs, &twiml.VoiceRedirect{Url: s.url(routeNoInput), Method: http.MethodPost})
}

// sayAndHangup speaks text and ends the call.
func sayAndHangup(text, voice string) []twiml.Element {
	return []twiml.Element{
		&twiml.VoiceSay{Message: text, Voice: voice},
		&twiml.VoiceHangup{},
	}
}

func writeTwiML(w http.ResponseWriter, logger *slog.Logger, verbs []twiml.Element) {
	doc, err := twiml.Voice(verbs)
	if err != nil {
		if logger != nil {
			logger.Error("render twiml", "error", err)
		}
		http.Error(w, "render twiml", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// url returns an absolute callback URL when the public base is known and a
// path Twilio resolves against the current document otherwise.
func (s *Server) url(route string) string {
	return s.cfg.PublicURL + route
}
