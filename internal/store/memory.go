package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/levelup/backend/internal/ledger"
	"github.com/levelup/backend/internal/models"
)

// MemoryLedgerStore is an in-memory LedgerStore used by tests and local
// development. A single mutex serializes Apply, which gives the same
// per-account atomicity the Postgres store provides with row locks.
type MemoryLedgerStore struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	transactions []models.TalentTransaction
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[string]*models.Account),
	}
}

// SeedAccount registers an account. Intended for test and dev setup.
func (s *MemoryLedgerStore) SeedAccount(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt
	s.accounts[account.ID] = &account
}

func (s *MemoryLedgerStore) Apply(ctx context.Context, tx *models.TalentTransaction, deltaCurrent, deltaMax int64) (*models.TalentTransaction, error) {
	if tx.Amount == 0 {
		return nil, ledger.E(ledger.KindValidation, "transaction amount must be non-zero")
	}
	if err := ctx.Err(); err != nil {
		return nil, ledger.Wrap(ledger.KindTimeout, err, "store operation timed out")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[tx.StudentID]
	if !ok {
		return nil, ledger.E(ledger.KindNotFound, "account %s not found", tx.StudentID)
	}
	if account.Role != models.RoleStudent {
		return nil, ledger.E(ledger.KindValidation, "account %s is not a student", tx.StudentID)
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	account.CurrentTalent += deltaCurrent
	account.MaxTalent += deltaMax
	account.Version++
	account.UpdatedAt = time.Now().UTC()
	s.transactions = append(s.transactions, *tx)

	return tx, nil
}

func (s *MemoryLedgerStore) QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TalentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.TalentTransaction{}
	for _, tx := range s.transactions {
		if !s.matches(tx, filter) {
			continue
		}
		matched = append(matched, tx)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []models.TalentTransaction{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryLedgerStore) matches(tx models.TalentTransaction, filter models.TransactionFilter) bool {
	if filter.Start != nil && tx.CreatedAt.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && tx.CreatedAt.After(*filter.End) {
		return false
	}
	if filter.StudentID != "" && tx.StudentID != filter.StudentID {
		return false
	}
	if filter.TeacherID != "" && (tx.TeacherID == nil || *tx.TeacherID != filter.TeacherID) {
		return false
	}
	if filter.Type != "" && tx.Type != filter.Type {
		return false
	}
	student := s.accounts[tx.StudentID]
	if filter.Group != "" && (student == nil || student.Group != filter.Group) {
		return false
	}
	if filter.StudentName != "" &&
		(student == nil || !strings.Contains(strings.ToLower(student.Name), strings.ToLower(filter.StudentName))) {
		return false
	}
	return true
}

func (s *MemoryLedgerStore) QueryAccountBalances(ctx context.Context, role string) ([]models.AccountBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := []models.AccountBalance{}
	for _, a := range s.accounts {
		if a.Role != role {
			continue
		}
		balances = append(balances, models.AccountBalance{
			ID:            a.ID,
			Name:          a.Name,
			Group:         a.Group,
			CurrentTalent: a.CurrentTalent,
			MaxTalent:     a.MaxTalent,
		})
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].MaxTalent != balances[j].MaxTalent {
			return balances[i].MaxTalent > balances[j].MaxTalent
		}
		return balances[i].Name < balances[j].Name
	})
	return balances, nil
}

func (s *MemoryLedgerStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, ledger.E(ledger.KindNotFound, "account %s not found", id)
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryLedgerStore) ListAccounts(ctx context.Context, role string) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := []models.Account{}
	for _, a := range s.accounts {
		if role != "" && a.Role != role {
			continue
		}
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Role != accounts[j].Role {
			return accounts[i].Role < accounts[j].Role
		}
		return accounts[i].Username < accounts[j].Username
	})
	return accounts, nil
}

func (s *MemoryLedgerStore) ListGroupMembers(ctx context.Context, group string) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := []models.Account{}
	for _, a := range s.accounts {
		if a.Role == models.RoleStudent && a.Group == group {
			members = append(members, *a)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

var _ LedgerStore = (*MemoryLedgerStore)(nil)
