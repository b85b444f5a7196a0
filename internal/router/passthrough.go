package router

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NewPassthrough forwards requests unchanged to the backend at baseURL. Used
// for endpoints that need no routing decision (tags, pull, show, ps,
// version). Streaming responses such as pull progress are flushed promptly.
func NewPassthrough(baseURL string, log zerolog.Logger) (http.Handler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	p := httputil.NewSingleHostReverseProxy(target)
	p.FlushInterval = 100 * time.Millisecond

	origDirector := p.Director
	p.Director = func(req *http.Request) {
		origDirector(req)
		req.Host = target.Host
		scrubHopByHop(req.Header)
	}
	p.ModifyResponse = func(resp *http.Response) error {
		scrubHopByHop(resp.Header)
		return nil
	}
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("event=passthrough_failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"inference backend unreachable","code":502}`))
	}
	return p, nil
}

func scrubHopByHop(h http.Header) {
	// Connection can list additional hop-by-hop headers.
	if c := h.Get("Connection"); c != "" {
		for _, f := range strings.Split(c, ",") {
			h.Del(strings.TrimSpace(f))
		}
	}
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
}
