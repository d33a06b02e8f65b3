package store

import (
	"context"

	"github.com/levelup/backend/internal/models"
)

// LedgerStore persists talent transactions and the derived balance counters.
//
// Apply is the only write: recording a transaction and adjusting the
// student's counters happen in one atomic unit, so a crash can never leave
// a transaction without its balance change or vice versa.
type LedgerStore interface {
	// Apply appends tx and adds deltaCurrent/deltaMax to the student's
	// counters atomically. tx.ID and tx.CreatedAt are filled in if unset.
	Apply(ctx context.Context, tx *models.TalentTransaction, deltaCurrent, deltaMax int64) (*models.TalentTransaction, error)

	QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TalentTransaction, error)
	QueryAccountBalances(ctx context.Context, role string) ([]models.AccountBalance, error)

	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, role string) ([]models.Account, error)
	// ListGroupMembers returns the student accounts of a group ordered by
	// (name, id). The order is the distribution order for group grants.
	ListGroupMembers(ctx context.Context, group string) ([]models.Account, error)
}
