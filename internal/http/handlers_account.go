package http

import (
	"encoding/json"
	"net/http"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

type accountJSON struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	Icon          string      `json:"icon"`
	InitialAmount json.Number `json:"initial_amount"`
	Balance       json.Number `json:"balance"`
}

func newAccountJSON(a core.Account) accountJSON {
	return accountJSON{
		ID:            a.ID,
		Name:          a.Name,
		Icon:          a.Icon,
		InitialAmount: signedAmount(a.Initial),
		Balance:       signedAmount(a.Balance),
	}
}

// signedAmount is amount for values that may be negative.
func signedAmount(m core.Money) json.Number {
	if m.Cents < 0 {
		return json.Number("-" + core.Money{Cents: -m.Cents}.String())
	}
	return amount(m)
}

// readAccount parses the add/edit form. A missing initial amount is zero.
func readAccount(body *RequestBodyParser) (core.Account, error) {
	a := core.Account{Name: body.Get("name"), Icon: body.Get("icon")}
	if v := body.Get("initial_amount"); v != "" {
		m, err := core.ParseSignedAmount(v)
		if err != nil {
			return core.Account{}, err
		}
		a.Initial = m
	}
	return a, nil
}

func (s *Server) handleAccountList(w http.ResponseWriter, r *http.Request) {
	accounts, total, err := s.accounts.List(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]accountJSON, len(accounts))
	for i, a := range accounts {
		out[i] = newAccountJSON(a)
	}
	NewHTMXResponse().JSON(map[string]any{
		"success":       true,
		"accounts":      out,
		"total_balance": signedAmount(total),
	}).Write(w)
}

func (s *Server) handleAccountAdd(w http.ResponseWriter, r *http.Request) {
	body := parseBody(w, r)
	if body == nil {
		return
	}
	a, err := readAccount(body)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.accounts.Create(r.Context(), a)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		JSON(map[string]any{"success": true, "account": newAccountJSON(created)}).
		Write(w)
}

func (s *Server) handleAccountEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		BadRequestError("Invalid account id").Write(w)
		return
	}
	body := parseBody(w, r)
	if body == nil {
		return
	}
	a, err := readAccount(body)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	a.ID = id
	updated, err := s.accounts.Update(r.Context(), a)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().JSON(map[string]any{"success": true, "account": newAccountJSON(updated)}).Write(w)
}

func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		BadRequestError("Invalid account id").Write(w)
		return
	}
	removed, err := s.accounts.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	NewHTMXResponse().JSON(map[string]any{
		"success":              true,
		"account_id":           id,
		"removed_transactions": removed,
	}).Write(w)
}
