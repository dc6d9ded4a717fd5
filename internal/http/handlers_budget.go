package http

import (
	"encoding/json"
	"net/http"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/services"
)

// budgetResponse is the shape the watcher's remote client decodes.
type budgetResponse struct {
	Success    bool        `json:"success"`
	CategoryID string      `json:"category_id"`
	Spent      json.Number `json:"spent"`
	Budget     json.Number `json:"budget"`
	Name       string      `json:"name"`
	Icon       string      `json:"icon"`
}

type snapshotEntry struct {
	Spent  json.Number `json:"spent"`
	Budget json.Number `json:"budget"`
	Name   string      `json:"name"`
	Icon   string      `json:"icon"`
}

type snapshotResponse struct {
	Success bool                     `json:"success"`
	Month   int                      `json:"month"`
	Year    int                      `json:"year"`
	Budgets map[string]snapshotEntry `json:"budgets"`
}

func newBudgetResponse(f services.BudgetFigures) budgetResponse {
	return budgetResponse{
		Success:    true,
		CategoryID: f.Category.ID.String(),
		Spent:      amount(f.Spent),
		Budget:     amount(f.Limit),
		Name:       f.Category.Name,
		Icon:       f.Category.Icon,
	}
}

func (s *Server) handleBudgetSpent(w http.ResponseWriter, r *http.Request) {
	body := parseBody(w, r)
	if body == nil {
		return
	}
	id, err := core.ParseCategoryID(body.Get("category"))
	if err != nil {
		BadRequestError("Category is required").Write(w)
		return
	}
	p, err := ParseMonthParams(body.Get, s.now())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}

	fig, err := s.budgets.Figures(r.Context(), id, p)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	NewHTMXResponse().JSON(newBudgetResponse(fig)).Write(w)
}

func (s *Server) handleBudgetSave(w http.ResponseWriter, r *http.Request) {
	body := parseBody(w, r)
	if body == nil {
		return
	}
	id, err := core.ParseCategoryID(body.Get("category"))
	if err != nil {
		BadRequestError("Category is required").Write(w)
		return
	}
	limit, err := core.ParseAmount(body.Get("amount"))
	if err != nil {
		UnprocessableEntityError("Budget amount must be a non-negative number").Write(w)
		return
	}
	p, err := ParseMonthParams(body.Get, s.now())
	if err != nil {
		writeError(w, r, applog.OpSave, err)
		return
	}

	fig, err := s.budgets.Save(r.Context(), core.Budget{CategoryID: id, Period: p, Limit: limit})
	if err != nil {
		writeError(w, r, applog.OpSave, err)
		return
	}
	NewHTMXResponse().JSON(newBudgetResponse(fig)).Write(w)
}

func (s *Server) handleBudgetSnapshot(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query().Get, s.now())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	figs, err := s.budgets.Snapshot(r.Context(), p)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}

	resp := snapshotResponse{
		Success: true,
		Month:   p.Month,
		Year:    p.Year,
		Budgets: make(map[string]snapshotEntry, len(figs)),
	}
	for _, f := range figs {
		resp.Budgets[f.Category.ID.String()] = snapshotEntry{
			Spent:  amount(f.Spent),
			Budget: amount(f.Limit),
			Name:   f.Category.Name,
			Icon:   f.Category.Icon,
		}
	}
	NewHTMXResponse().JSON(resp).Write(w)
}
