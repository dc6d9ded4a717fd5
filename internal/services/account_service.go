package services

import (
	"context"
	"strings"

	"budgetbee/internal/core"
)

// AccountService manages accounts. Removing an account removes its
// transactions, which are announced through the transaction service.
type AccountService struct {
	ledger Ledger
	txs    *TransactionService
}

func NewAccountService(ledger Ledger, txs *TransactionService) *AccountService {
	return &AccountService{ledger: ledger, txs: txs}
}

// List returns every account and the sum of their balances.
func (s *AccountService) List(ctx context.Context) ([]core.Account, core.Money, error) {
	accounts, err := s.ledger.ListAccounts(ctx)
	if err != nil {
		return nil, core.Money{}, err
	}
	var total core.Money
	for _, a := range accounts {
		total.Cents += a.Balance.Cents
	}
	return accounts, total, nil
}

func (s *AccountService) Create(ctx context.Context, a core.Account) (core.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Icon == "" {
		a.Icon = core.DefaultAccountIcon
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	return s.ledger.CreateAccount(ctx, a)
}

// Update replaces name and initial amount. An empty icon keeps the stored
// one. The balance is recomputed from the account's transactions.
func (s *AccountService) Update(ctx context.Context, a core.Account) (core.Account, error) {
	cur, err := s.ledger.GetAccount(ctx, a.ID)
	if err != nil {
		return core.Account{}, err
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.Icon == "" {
		a.Icon = cur.Icon
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	return s.ledger.UpdateAccount(ctx, a)
}

// Delete removes the account and its transactions and returns how many
// transactions went with it.
func (s *AccountService) Delete(ctx context.Context, id int64) (int, error) {
	removed, err := s.ledger.DeleteAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	if s.txs != nil {
		s.txs.announceRemoved(ctx, removed)
	}
	return len(removed), nil
}
