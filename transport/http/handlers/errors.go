package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	relayerrors "github.com/kart-io/relayhub/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError answers with the coded error body and the status its code maps
// to. Errors without a code are reported as internal.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if code, ok := relayerrors.CodeOf(err); ok {
		status = relayerrors.HTTPStatus(code)
	}
	writeJSON(w, status, relayerrors.FormatForAPI(err))
}

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	w.Header().Set("Allow", strings.Join(allow, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "method not allowed",
	})
}

// bodyError classifies a failed body read
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return relayerrors.New(relayerrors.ErrBodyTooLarge, "request body too large")
	}
	return relayerrors.Wrap(err, relayerrors.ErrMalformedInput, "request body could not be read")
}
