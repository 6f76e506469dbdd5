package http

import (
	"net/http"
	"strings"

	"truckpay/internal/auth"
	"truckpay/internal/core"
)

func (s *Server) handleListExpenseTypes(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	types, err := s.store.ListExpenseTypes(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]any{"id": t.ID, "name": t.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpenseType(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.fail(w, r, core.ErrEmptyName)
		return
	}

	id, err := s.store.CreateExpenseType(r.Context(), userID, name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": name})
}

func (s *Server) handleDeleteExpenseType(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense type id")
		return
	}

	if err := s.store.DeleteExpenseType(r.Context(), userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type expenseRequest struct {
	TypeID int64  `json:"type_id"`
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Note   string `json:"note"`
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	TypeID      int64  `json:"type_id"`
	TypeName    string `json:"type_name,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Note        string `json:"note,omitempty"`
}

func (s *Server) parseExpense(req expenseRequest) (core.Expense, error) {
	cents, err := core.ParsePositiveCents(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		TypeID: req.TypeID,
		Amount: core.Money{Cents: cents},
		Date:   core.DateOf(nowFunc()),
		Note:   strings.TrimSpace(req.Note),
	}
	if req.Date != "" {
		if e.Date, err = core.ParseDate(req.Date); err != nil {
			return core.Expense{}, err
		}
	}
	return e, e.Validate()
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	rows, err := s.store.ListExpenses(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]expenseResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, expenseResponse{
			ID:          row.Expense.ID,
			TypeID:      row.Expense.TypeID,
			TypeName:    row.TypeName,
			AmountCents: row.Expense.Amount.Cents,
			Date:        row.Expense.Date.ISO(),
			Note:        row.Expense.Note,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := s.parseExpense(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.store.CreateExpense(r.Context(), userID, e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e.ID = id

	writeJSON(w, http.StatusCreated, expenseResponse{
		ID:          e.ID,
		TypeID:      e.TypeID,
		AmountCents: e.Amount.Cents,
		Date:        e.Date.ISO(),
		Note:        e.Note,
	})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := s.parseExpense(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e.ID = id

	if err := s.store.UpdateExpense(r.Context(), userID, e); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseResponse{
		ID:          e.ID,
		TypeID:      e.TypeID,
		AmountCents: e.Amount.Cents,
		Date:        e.Date.ISO(),
		Note:        e.Note,
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.store.DeleteExpense(r.Context(), userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
