package server

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ravi-parthasarathy/fidi/pkg/request"
)

// Handler is the HTTP entry point for one mock node. GET /healthz reports
// the health state without touching the body; every other path is parsed
// as a request document and, when clean, handed to the executor. While
// the unresponsive window is open the connection is closed without
// reading or replying, for all paths.
type Handler struct {
	logger zerolog.Logger
	health *Health
	exec   *Executor
	count  atomic.Int64
}

// NewHandler builds a handler around the shared executor and health state.
func NewHandler(logger zerolog.Logger, health *Health, exec *Executor) *Handler {
	return &Handler{logger: logger, health: health, exec: exec}
}

// Router builds the mux router: /healthz, then a catch-all treating every
// other path as a normal request path.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.dropWhileUnresponsive)
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(h.handleRequest)
	return r
}

// dropWhileUnresponsive simulates a hung node: during the unresponsive
// window every connection, /healthz included, is hijacked and closed
// without a reply.
func (h *Handler) dropWhileUnresponsive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.health.Responsive() {
			h.logger.Debug().Msg("Dropping connection, node unresponsive")
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			panic(http.ErrAbortHandler)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.logger.Trace().Msg("Healthz")
	if h.health.Healthy() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Msgf("Request from %s", r.RemoteAddr)
	count := h.count.Add(1)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read request body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m := request.Parse(string(body))
	nerrors, parseErrors := m.Errors()
	warnings, warningMsg := request.Validate(m)

	w.Header().Set("Content-Type", "text/html")

	if nerrors != 0 || warnings != 0 {
		if nerrors != 0 {
			h.logger.Error().Msg(parseErrors)
		}
		w.WriteHeader(http.StatusBadRequest)
		h.writePreamble(w, r, count)
		if nerrors != 0 {
			fmt.Fprintf(w, "    <h2>Parse Syntax Errors</h2>\n\n\n%s\n", parseErrors)
		}
		if warnings != 0 {
			fmt.Fprintf(w, "    <h2>Parse  Errors</h2>\n\n\n%s", warningMsg)
		}
	} else {
		h.exec.Execute(r.Context(), m, w)
		h.writePreamble(w, r, count)
	}

	fmt.Fprint(w, "</body></html>")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.logger.Info().Msgf("Response sent for count=%d and URI=%s", count, r.RequestURI)
}

// writePreamble emits the start of the minimal HTML envelope.
func (h *Handler) writePreamble(w io.Writer, r *http.Request, count int64) {
	fmt.Fprintf(w, "<html><head><title>Fidi  (φίδι) -- a service mock "+
		"instance\n</title></head>\n"+
		"<body>\n"+
		"<h1>Hello world!</h1>\n"+
		"<p>Count: %d</p>\n"+
		"<p>Method: %s</p>\n"+
		"<p>URI: %s</p>\n", count, r.Method, r.RequestURI)
}
