package services

import (
	"context"

	"github.com/levelup/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) Apply(ctx context.Context, tx *models.TalentTransaction, deltaCurrent, deltaMax int64) (*models.TalentTransaction, error) {
	args := m.Called(ctx, tx, deltaCurrent, deltaMax)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TalentTransaction), args.Error(1)
}

func (m *MockLedgerStore) QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TalentTransaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TalentTransaction), args.Error(1)
}

func (m *MockLedgerStore) QueryAccountBalances(ctx context.Context, role string) ([]models.AccountBalance, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AccountBalance), args.Error(1)
}

func (m *MockLedgerStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedgerStore) ListAccounts(ctx context.Context, role string) ([]models.Account, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockLedgerStore) ListGroupMembers(ctx context.Context, group string) ([]models.Account, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Account), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(event any) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
