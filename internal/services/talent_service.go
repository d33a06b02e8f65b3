package services

import (
	"context"
	"fmt"
	"log"

	"github.com/levelup/backend/internal/audit"
	"github.com/levelup/backend/internal/events"
	"github.com/levelup/backend/internal/ledger"
	"github.com/levelup/backend/internal/models"
	"github.com/levelup/backend/internal/store"
)

// TalentService is the ledger engine. It validates operator authorization,
// computes the amounts to apply, and invokes the store's atomic unit.
// Authorization is enforced here, not in the HTTP layer, so every entry
// point goes through the same gate.
type TalentService struct {
	store  store.LedgerStore
	audit  *audit.Logger
	events events.Publisher
}

func NewTalentService(ledgerStore store.LedgerStore, publisher events.Publisher) *TalentService {
	return &TalentService{
		store:  ledgerStore,
		audit:  audit.NewLogger(),
		events: publisher,
	}
}

// GrantIndividual adds amount to a student's current and max talent and
// records one individual_give transaction.
func (s *TalentService) GrantIndividual(ctx context.Context, operatorID, studentID string, amount int64, reason string) (*models.TalentTransaction, error) {
	if amount <= 0 {
		return nil, ledger.E(ledger.KindValidation, "grant amount must be positive, got %d", amount)
	}
	if _, err := authorizeOperator(ctx, s.store, operatorID); err != nil {
		return nil, err
	}

	tx := &models.TalentTransaction{
		StudentID: studentID,
		TeacherID: &operatorID,
		Amount:    amount,
		Type:      models.TypeIndividualGive,
		Reason:    reason,
	}

	applied, err := s.store.Apply(ctx, tx, amount, amount)
	if err != nil {
		s.audit.LogError(studentID, operatorID, err)
		return nil, err
	}

	s.audit.LogMutation("GRANT", applied.ID, studentID, operatorID, amount, reason)
	s.publishRecorded(applied)
	return applied, nil
}

// RevokeIndividual subtracts amount from a student's current talent and
// records one individual_take transaction. max_talent is a high-water mark
// and is never reduced; the balance is allowed to go negative.
func (s *TalentService) RevokeIndividual(ctx context.Context, operatorID, studentID string, amount int64, reason string) (*models.TalentTransaction, error) {
	if amount <= 0 {
		return nil, ledger.E(ledger.KindValidation, "revoke amount must be positive, got %d", amount)
	}
	if _, err := authorizeOperator(ctx, s.store, operatorID); err != nil {
		return nil, err
	}

	tx := &models.TalentTransaction{
		StudentID: studentID,
		TeacherID: &operatorID,
		Amount:    -amount,
		Type:      models.TypeIndividualTake,
		Reason:    reason,
	}

	applied, err := s.store.Apply(ctx, tx, -amount, 0)
	if err != nil {
		s.audit.LogError(studentID, operatorID, err)
		return nil, err
	}

	s.audit.LogMutation("REVOKE", applied.ID, studentID, operatorID, -amount, reason)
	s.publishRecorded(applied)
	return applied, nil
}

// GrantGroup distributes totalAmount evenly across the group's students.
// Members are ordered by (name, id); the first totalAmount%N members get one
// extra unit so the per-member shares sum exactly to totalAmount. Each
// member's transaction is its own atomic unit: failures do not roll back
// members already committed, they are collected into a PartialFailureError.
func (s *TalentService) GrantGroup(ctx context.Context, operatorID, group string, totalAmount int64, reason string) ([]models.TalentTransaction, error) {
	if totalAmount <= 0 {
		return nil, ledger.E(ledger.KindValidation, "group grant amount must be positive, got %d", totalAmount)
	}
	if group == "" {
		return nil, ledger.E(ledger.KindValidation, "group is required")
	}
	if _, err := authorizeOperator(ctx, s.store, operatorID); err != nil {
		return nil, err
	}

	members, err := s.store.ListGroupMembers(ctx, group)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ledger.E(ledger.KindNotFound, "group %q has no students", group)
	}

	if reason == "" {
		reason = fmt.Sprintf("group grant (%s)", group)
	}

	shares := splitEvenly(totalAmount, len(members))
	applied := []models.TalentTransaction{}
	var failures []ledger.MemberFailure

	for i, member := range members {
		share := shares[i]
		if share == 0 {
			// totalAmount < len(members); the trailing members get nothing
			continue
		}
		tx := &models.TalentTransaction{
			StudentID: member.ID,
			TeacherID: &operatorID,
			Amount:    share,
			Type:      models.TypeGroupGive,
			Reason:    reason,
		}

		memberTx, err := s.store.Apply(ctx, tx, share, share)
		if err != nil {
			s.audit.LogError(member.ID, operatorID, err)
			failures = append(failures, ledger.MemberFailure{StudentID: member.ID, Reason: err.Error()})
			continue
		}

		s.audit.LogMutation("GROUP_GRANT", memberTx.ID, member.ID, operatorID, share, reason)
		s.publishRecorded(memberTx)
		applied = append(applied, *memberTx)
	}

	if len(failures) > 0 {
		return applied, &ledger.PartialFailureError{Failures: failures}
	}
	return applied, nil
}

// QueryTransactions is the privileged read side used by reporting.
func (s *TalentService) QueryTransactions(ctx context.Context, operatorID string, filter models.TransactionFilter) ([]models.TalentTransaction, error) {
	if _, err := authorizeOperator(ctx, s.store, operatorID); err != nil {
		return nil, err
	}
	return s.store.QueryTransactions(ctx, filter)
}

// splitEvenly returns n shares summing exactly to total, differing by at
// most one unit, with the earlier positions carrying the remainder.
func splitEvenly(total int64, n int) []int64 {
	base := total / int64(n)
	remainder := total % int64(n)

	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}

func (s *TalentService) publishRecorded(tx *models.TalentTransaction) {
	if s.events == nil {
		return
	}
	event := events.TransactionRecorded{
		TransactionID: tx.ID,
		StudentID:     tx.StudentID,
		TeacherID:     tx.TeacherID,
		Amount:        tx.Amount,
		Type:          tx.Type,
		Reason:        tx.Reason,
		CreatedAt:     tx.CreatedAt,
	}
	if err := s.events.Publish(event); err != nil {
		log.Printf("[TALENT] Failed to publish transaction event %s: %v", tx.ID, err)
	}
}

// authorizeOperator resolves the caller and verifies ledger privilege.
// A missing account is reported as an authorization failure, not not-found,
// so unknown callers learn nothing about the directory.
func authorizeOperator(ctx context.Context, ledgerStore store.LedgerStore, operatorID string) (*models.Account, error) {
	if operatorID == "" {
		return nil, ledger.E(ledger.KindAuthorization, "missing operator identity")
	}

	operator, err := ledgerStore.GetAccount(ctx, operatorID)
	if err != nil {
		if ledger.KindOf(err) == ledger.KindNotFound {
			return nil, ledger.E(ledger.KindAuthorization, "operator %s is not a known account", operatorID)
		}
		return nil, err
	}

	if !operator.IsOperator() {
		return nil, ledger.E(ledger.KindAuthorization, "operator %s lacks ledger privilege", operatorID)
	}
	return operator, nil
}
