package handlers

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/vango-go/voicegate/pkg/gateway/config"
)

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// TwiMLHandler answers the telephony provider's webhook with instructions to
// open a bidirectional media stream to this gateway.
type TwiMLHandler struct {
	Config config.Config
}

func (h TwiMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	host := strings.TrimSpace(h.Config.PublicHost)
	if host == "" {
		host = r.Host
	}

	body, err := xml.Marshal(twimlResponse{
		Connect: twimlConnect{
			Stream: twimlStream{URL: "wss://" + host + "/call"},
		},
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
