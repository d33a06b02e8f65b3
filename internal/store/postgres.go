package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/levelup/backend/internal/config"
	"github.com/levelup/backend/internal/ledger"
	"github.com/levelup/backend/internal/models"
	"github.com/lib/pq"
)

type PostgresLedgerStore struct {
	db         *sql.DB
	maxRetries int
	backoff    time.Duration
	opTimeout  time.Duration
	queryLimit int
	maxLimit   int
}

func NewPostgresLedgerStore(db *sql.DB, cfg *config.LedgerConfig) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db:         db,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		opTimeout:  cfg.OperationTimeout,
		queryLimit: cfg.DefaultQueryLimit,
		maxLimit:   cfg.MaxQueryLimit,
	}
}

// opContext bounds one store operation, retries included. A zero timeout
// leaves the caller's context untouched.
func (s *PostgresLedgerStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Apply wraps the transaction insert and the counter update in one database
// transaction, retrying a bounded number of times when the account row is
// contended before surfacing a conflict.
func (s *PostgresLedgerStore) Apply(ctx context.Context, tx *models.TalentTransaction, deltaCurrent, deltaMax int64) (*models.TalentTransaction, error) {
	if tx.Amount == 0 {
		return nil, ledger.E(ledger.KindValidation, "transaction amount must be non-zero")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, translate(ctx.Err())
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}

		applied, err := s.applyOnce(ctx, tx, deltaCurrent, deltaMax)
		if err == nil {
			return applied, nil
		}
		if ledger.KindOf(err) != ledger.KindConflict {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *PostgresLedgerStore) applyOnce(ctx context.Context, tx *models.TalentTransaction, deltaCurrent, deltaMax int64) (*models.TalentTransaction, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer dbTx.Rollback()

	account, err := s.lockAccount(ctx, dbTx, tx.StudentID)
	if err != nil {
		return nil, err
	}
	if account.Role != models.RoleStudent {
		return nil, ledger.E(ledger.KindValidation, "account %s is not a student", tx.StudentID)
	}

	if err := s.appendTransaction(ctx, dbTx, tx); err != nil {
		return nil, err
	}

	if err := s.adjustBalance(ctx, dbTx, account, deltaCurrent, deltaMax); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, translate(err)
	}
	return tx, nil
}

func (s *PostgresLedgerStore) lockAccount(ctx context.Context, dbTx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := dbTx.QueryRowContext(ctx, `
		SELECT id, role, current_talent, max_talent, version
		FROM users
		WHERE id = $1
		FOR UPDATE`, accountID).
		Scan(&account.ID, &account.Role, &account.CurrentTalent, &account.MaxTalent, &account.Version)
	if err == sql.ErrNoRows {
		return nil, ledger.E(ledger.KindNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *PostgresLedgerStore) appendTransaction(ctx context.Context, dbTx *sql.Tx, tx *models.TalentTransaction) error {
	_, err := dbTx.ExecContext(ctx, `
		INSERT INTO talent_transactions (id, student_id, teacher_id, amount, transaction_type, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.StudentID, tx.TeacherID, tx.Amount, tx.Type, tx.Reason, tx.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (s *PostgresLedgerStore) adjustBalance(ctx context.Context, dbTx *sql.Tx, account *models.Account, deltaCurrent, deltaMax int64) error {
	result, err := dbTx.ExecContext(ctx, `
		UPDATE users
		SET current_talent = $1, max_talent = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		account.CurrentTalent+deltaCurrent, account.MaxTalent+deltaMax, time.Now(), account.ID, account.Version)
	if err != nil {
		return translate(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if rowsAffected == 0 {
		return ledger.E(ledger.KindConflict, "optimistic lock failed for account %s", account.ID)
	}
	return nil
}

func (s *PostgresLedgerStore) QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TalentTransaction, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	baseQuery := `
		SELECT t.id, t.student_id, t.teacher_id, t.amount, t.transaction_type, COALESCE(t.reason, ''), t.created_at
		FROM talent_transactions t
		JOIN users s ON s.id = t.student_id
	`

	if filter.Start != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at >= $%d", argIndex))
		args = append(args, *filter.Start)
		argIndex++
	}
	if filter.End != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at <= $%d", argIndex))
		args = append(args, *filter.End)
		argIndex++
	}
	if filter.Group != "" {
		conditions = append(conditions, fmt.Sprintf("s.group_name = $%d", argIndex))
		args = append(args, filter.Group)
		argIndex++
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("t.student_id = $%d", argIndex))
		args = append(args, filter.StudentID)
		argIndex++
	}
	if filter.StudentName != "" {
		conditions = append(conditions, fmt.Sprintf("s.name ILIKE $%d", argIndex))
		args = append(args, "%"+filter.StudentName+"%")
		argIndex++
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("t.teacher_id = $%d", argIndex))
		args = append(args, filter.TeacherID)
		argIndex++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("t.transaction_type = $%d", argIndex))
		args = append(args, filter.Type)
		argIndex++
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY t.created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = s.queryLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	transactions := []models.TalentTransaction{}
	for rows.Next() {
		var tx models.TalentTransaction
		if err := rows.Scan(&tx.ID, &tx.StudentID, &tx.TeacherID, &tx.Amount, &tx.Type, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, translate(err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return transactions, nil
}

func (s *PostgresLedgerStore) QueryAccountBalances(ctx context.Context, role string) ([]models.AccountBalance, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(group_name, ''), current_talent, max_talent
		FROM users
		WHERE role = $1
		ORDER BY max_talent DESC, name ASC`, role)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	balances := []models.AccountBalance{}
	for rows.Next() {
		var b models.AccountBalance
		if err := rows.Scan(&b.ID, &b.Name, &b.Group, &b.CurrentTalent, &b.MaxTalent); err != nil {
			return nil, translate(err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return balances, nil
}

func (s *PostgresLedgerStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var account models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, role, COALESCE(group_name, ''), COALESCE(grade, ''),
		       COALESCE(gender, ''), COALESCE(church, ''), current_talent, max_talent, version, created_at, updated_at
		FROM users
		WHERE id = $1`, id).
		Scan(&account.ID, &account.Username, &account.Name, &account.Role, &account.Group,
			&account.Grade, &account.Gender, &account.Church, &account.CurrentTalent,
			&account.MaxTalent, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.E(ledger.KindNotFound, "account %s not found", id)
	}
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *PostgresLedgerStore) ListAccounts(ctx context.Context, role string) ([]models.Account, error) {
	query := `
		SELECT id, username, name, role, COALESCE(group_name, ''), COALESCE(grade, ''),
		       COALESCE(gender, ''), COALESCE(church, ''), current_talent, max_talent, version, created_at, updated_at
		FROM users`
	var args []interface{}
	if role != "" {
		query += " WHERE role = $1"
		args = append(args, role)
	}
	query += " ORDER BY role ASC, username ASC"

	return s.scanAccounts(ctx, query, args...)
}

func (s *PostgresLedgerStore) ListGroupMembers(ctx context.Context, group string) ([]models.Account, error) {
	const query = `
		SELECT id, username, name, role, COALESCE(group_name, ''), COALESCE(grade, ''),
		       COALESCE(gender, ''), COALESCE(church, ''), current_talent, max_talent, version, created_at, updated_at
		FROM users
		WHERE role = 'student' AND group_name = $1
		ORDER BY name ASC, id ASC`

	return s.scanAccounts(ctx, query, group)
}

func (s *PostgresLedgerStore) scanAccounts(ctx context.Context, query string, args ...interface{}) ([]models.Account, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Name, &a.Role, &a.Group, &a.Grade,
			&a.Gender, &a.Church, &a.CurrentTalent, &a.MaxTalent, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, translate(err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return accounts, nil
}

// translate maps driver-level errors into the ledger taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ledger.Wrap(ledger.KindTimeout, err, "store operation timed out")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return ledger.Wrap(ledger.KindConflict, err, "concurrent update conflict")
		case "57014": // query canceled (statement timeout)
			return ledger.Wrap(ledger.KindTimeout, err, "store operation timed out")
		}
	}
	return ledger.Wrap(ledger.KindInternal, err, "store operation failed")
}

var _ LedgerStore = (*PostgresLedgerStore)(nil)
