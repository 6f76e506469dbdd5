package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"truckpay/internal/core"
	"truckpay/internal/log"
	"truckpay/internal/storage"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded request body into dst, rejecting unknown
// fields so typos in client payloads surface as errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// validationErrors are the domain sentinels a client can fix by correcting
// its input. Everything on this list maps to 422.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidPercent,
	core.ErrInvalidDate,
	core.ErrEmptyLocation,
	core.ErrEmptyType,
	core.ErrEmptyName,
	core.ErrInvalidDriver,
	core.ErrInvalidPeriod,
	core.ErrInvalidMileage,
	core.ErrUnknownExpense,
	core.ErrInvalidDocument,
}

// fail translates an error into the HTTP response. Validation problems and
// missing rows keep their message; anything else logs and returns a generic
// 500 so internals never leak to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	log.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
		log.FieldError, err.Error(),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", r.PathValue("id"))
	}
	return id, nil
}
