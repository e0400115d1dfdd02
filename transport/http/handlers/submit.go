package handlers

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/relay"
)

// Processor runs one submission through the pipeline
type Processor interface {
	Process(ctx context.Context, body []byte, clientAddr string) (*relay.Acknowledgement, error)
}

// SubmitHandler accepts submissions over HTTP
type SubmitHandler struct {
	processor    Processor
	maxBodyBytes int64
	logger       logger.Logger
}

// NewSubmitHandler creates a submit handler. A non-positive maxBodyBytes
// leaves the body uncapped.
func NewSubmitHandler(p Processor, maxBodyBytes int64, l logger.Logger) *SubmitHandler {
	if l == nil {
		l = logger.Discard
	}
	return &SubmitHandler{processor: p, maxBodyBytes: maxBodyBytes, logger: l}
}

// StatusResponse is returned for GET on a submission endpoint
type StatusResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Endpoint  string   `json:"endpoint"`
	Timestamp string   `json:"timestamp"`
	Features  []string `json:"features"`
}

// ServeHTTP dispatches on method. The acknowledgement is always a 200 once
// the pipeline has started, even when no destination accepted the summary.
func (h *SubmitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.status(w, r)
	case http.MethodPost:
		h.submit(w, r)
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodGet, http.MethodOptions)
	}
}

func (h *SubmitHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Success:   true,
		Message:   "relay is accepting submissions",
		Endpoint:  r.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Features:  []string{"location", "photo", "device", "origin", "multiple destinations"},
	})
}

func (h *SubmitHandler) submit(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		err = bodyError(err)
		h.logger.Warn("Rejected request body", "error", err)
		writeError(w, err)
		return
	}

	ack, err := h.processor.Process(r.Context(), raw, ClientAddr(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// ClientAddr returns the submitter's address: the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote address without its port.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
