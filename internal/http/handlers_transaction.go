package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/services"
)

type transactionJSON struct {
	ID         int64       `json:"id"`
	CategoryID string      `json:"category_id"`
	AccountID  int64       `json:"account_id,omitempty"`
	Amount     json.Number `json:"amount"`
	Type       string      `json:"type"`
	Note       string      `json:"note"`
	Date       string      `json:"date"`
}

type totalsJSON struct {
	TotalIncome  json.Number `json:"total_income"`
	TotalExpense json.Number `json:"total_expense"`
	Balance      json.Number `json:"balance"`
}

type transactionResponse struct {
	Success       bool             `json:"success"`
	Transaction   *transactionJSON `json:"transaction,omitempty"`
	TransactionID int64            `json:"transaction_id,omitempty"`
	CategoryID    string           `json:"category_id"`
	CategoryName  string           `json:"category_name,omitempty"`
	Amount        json.Number      `json:"amount"`
	totalsJSON
}

type transactionListResponse struct {
	Success      bool              `json:"success"`
	Month        int               `json:"month"`
	Year         int               `json:"year"`
	Transactions []transactionJSON `json:"transactions"`
	totalsJSON
}

func newTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:         t.ID,
		CategoryID: t.CategoryID.String(),
		AccountID:  t.AccountID,
		Amount:     amount(t.Amount),
		Type:       string(t.Type),
		Note:       t.Note,
		Date:       t.Date.Format("2006-01-02"),
	}
}

func newTotalsJSON(t core.MonthTotals) totalsJSON {
	return totalsJSON{
		TotalIncome:  amount(t.Income),
		TotalExpense: amount(t.Expense),
		Balance:      amount(t.Balance()),
	}
}

// readTransaction parses the add/edit form. The type defaults to expense and
// the account is optional.
func (s *Server) readTransaction(body *RequestBodyParser) (core.Transaction, error) {
	id, err := core.ParseCategoryID(body.Get("category"))
	if err != nil {
		return core.Transaction{}, err
	}
	cents, err := core.ParseDecimalToCents(body.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	typ := core.Expense
	if v := body.Get("type"); v != "" {
		if typ, err = core.ParseTransactionType(v); err != nil {
			return core.Transaction{}, err
		}
	}
	date, err := parseDate(body.Get("date"), s.now())
	if err != nil {
		return core.Transaction{}, core.ErrInvalidDate
	}
	var account int64
	if v := body.Get("account"); v != "" {
		if account, err = strconv.ParseInt(v, 10, 64); err != nil || account <= 0 {
			return core.Transaction{}, core.ErrInvalidAccount
		}
	}
	return core.Transaction{
		CategoryID: id,
		AccountID:  account,
		Amount:     core.Money{Cents: cents},
		Type:       typ,
		Note:       body.Get("note"),
		Date:       date,
	}, nil
}

func writeTransactionResult(w http.ResponseWriter, res services.TransactionResult, action core.Action) {
	tx := newTransactionJSON(res.Transaction)
	resp := transactionResponse{
		Success:      true,
		CategoryID:   tx.CategoryID,
		CategoryName: res.Category.Name,
		Amount:       tx.Amount,
		totalsJSON:   newTotalsJSON(res.Totals),
	}
	if action == core.ActionDelete {
		resp.TransactionID = tx.ID
	} else {
		resp.Transaction = &tx
	}

	NewHTMXResponse().
		TriggerTransaction(res.Transaction, action).
		JSON(resp).
		Write(w)
}

func (s *Server) handleTransactionAdd(w http.ResponseWriter, r *http.Request) {
	body := parseBody(w, r)
	if body == nil {
		return
	}
	t, err := s.readTransaction(body)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	res, err := s.transactions.Create(r.Context(), t)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeTransactionResult(w, res, core.ActionAdd)
}

func (s *Server) handleTransactionEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		BadRequestError("Invalid transaction id").Write(w)
		return
	}
	body := parseBody(w, r)
	if body == nil {
		return
	}
	t, err := s.readTransaction(body)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	t.ID = id

	res, err := s.transactions.Update(r.Context(), t)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeTransactionResult(w, res, core.ActionEdit)
}

func (s *Server) handleTransactionDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		BadRequestError("Invalid transaction id").Write(w)
		return
	}

	res, err := s.transactions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	writeTransactionResult(w, res, core.ActionDelete)
}

func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query().Get, s.now())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	txs, totals, err := s.transactions.List(r.Context(), p)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}

	resp := transactionListResponse{
		Success:      true,
		Month:        p.Month,
		Year:         p.Year,
		Transactions: make([]transactionJSON, len(txs)),
		totalsJSON:   newTotalsJSON(totals),
	}
	for i, t := range txs {
		resp.Transactions[i] = newTransactionJSON(t)
	}
	NewHTMXResponse().JSON(resp).Write(w)
}
