package http

import (
	"net/http"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

type categoryJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
}

func newCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{
		ID:    c.ID.String(),
		Name:  c.Name,
		Icon:  c.Icon,
		Type:  string(c.Type),
		Color: c.Color,
	}
}

func (s *Server) handleCategoryList(w http.ResponseWriter, r *http.Request) {
	var typ core.TransactionType
	if v := sanitizeInput(r.URL.Query().Get("type")); v != "" {
		var err error
		if typ, err = core.ParseTransactionType(v); err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
	}

	cats, err := s.categories.List(r.Context(), typ)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]categoryJSON, len(cats))
	for i, c := range cats {
		out[i] = newCategoryJSON(c)
	}
	NewHTMXResponse().JSON(map[string]any{"success": true, "categories": out}).Write(w)
}

func (s *Server) handleCategoryAdd(w http.ResponseWriter, r *http.Request) {
	body := parseBody(w, r)
	if body == nil {
		return
	}
	typ, err := core.ParseTransactionType(body.Get("type"))
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	c, err := s.categories.Create(r.Context(), core.Category{
		Name:  body.Get("name"),
		Icon:  body.Get("icon"),
		Color: body.Get("color"),
		Type:  typ,
	})
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		JSON(map[string]any{"success": true, "category": newCategoryJSON(c)}).
		Write(w)
}

func (s *Server) handleCategoryEdit(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseCategoryID(r.PathValue("id"))
	if err != nil {
		BadRequestError("Invalid category id").Write(w)
		return
	}
	body := parseBody(w, r)
	if body == nil {
		return
	}
	var typ core.TransactionType
	if v := body.Get("type"); v != "" {
		if typ, err = core.ParseTransactionType(v); err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
	}

	c, err := s.categories.Update(r.Context(), core.Category{
		ID:    id,
		Name:  body.Get("name"),
		Icon:  body.Get("icon"),
		Color: body.Get("color"),
		Type:  typ,
	})
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().JSON(map[string]any{"success": true, "category": newCategoryJSON(c)}).Write(w)
}

func (s *Server) handleCategoryDelete(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseCategoryID(r.PathValue("id"))
	if err != nil {
		BadRequestError("Invalid category id").Write(w)
		return
	}
	if err := s.categories.Delete(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	NewHTMXResponse().JSON(map[string]any{"success": true, "category_id": id.String()}).Write(w)
}
