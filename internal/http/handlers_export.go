package http

import (
	"io"
	"net/http"

	"truckpay/internal/auth"
	"truckpay/internal/export"
	"truckpay/internal/log"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	doc, err := export.Export(r.Context(), s.store, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := doc.Marshal()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="truckpay-export.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleImport validates the whole document before any write: a malformed
// payload returns 422 with counts untouched.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := export.Parse(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := export.Import(r.Context(), s.store, userID, doc); err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	log.FromContext(r.Context()).InfoContext(r.Context(), "import completed",
		log.FieldUserID, userID,
		"loads", len(doc.Loads),
		"deductions", len(doc.Deductions))
	writeJSON(w, http.StatusOK, map[string]any{
		"loads":      len(doc.Loads),
		"deductions": len(doc.Deductions),
	})
}
