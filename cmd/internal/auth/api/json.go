package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	errEmptyBody    = errors.New("authapi: empty body")
	errTrailingData = errors.New("authapi: data after JSON value")
	errBodyTooLarge = errors.New("authapi: body too large")
)

// writeJSON renders v with the given status. Auth responses carry tokens, so
// nothing here may be cached.
func writeJSON(w http.ResponseWriter, status int, v any) {
	hdr := w.Header()
	hdr.Set("Content-Type", "application/json; charset=utf-8")
	hdr.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, messageResponse{Message: msg, Code: code})
}

// readBody decodes exactly one JSON object of at most limit bytes into dst.
// Unknown fields are rejected.
func readBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		if dec.Decode(&struct{}{}) != io.EOF {
			return errTrailingData
		}
		return nil
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return errBodyTooLarge
	case errors.Is(err, io.EOF):
		return errEmptyBody
	}
	return err
}

// decode reads the request body into dst and answers the request itself when
// it cannot. Callers return when it reports false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := readBody(w, r, h.cfg.MaxBodyBytes, dst)
	if err == nil {
		return true
	}

	h.log.Debug("auth.request.body.invalid", "path", r.URL.Path, "err", err)
	if errors.Is(err, errBodyTooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large")
		return false
	}
	writeMessage(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
	return false
}
