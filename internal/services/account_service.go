package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/levelup/backend/internal/models"
)

// AccountService is the account directory. It owns the identity fields
// (username, name, role, group, grade, gender, church); the talent counters
// are mutated only by the ledger engine.
type AccountService struct {
	db        *sql.DB
	validator *validator.Validate
}

type CreateAccountRequest struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Role     string `json:"role" validate:"required,oneof=admin teacher student"`
	Group    string `json:"group" validate:"max=50"`
	Grade    string `json:"grade" validate:"max=20"`
	Gender   string `json:"gender" validate:"max=10"`
	Church   string `json:"church" validate:"max=100"`
}

type UpdateAccountRequest struct {
	Name   string `json:"name" validate:"omitempty,min=1,max=100"`
	Role   string `json:"role" validate:"omitempty,oneof=admin teacher student"`
	Group  string `json:"group" validate:"max=50"`
	Grade  string `json:"grade" validate:"max=20"`
	Gender string `json:"gender" validate:"max=10"`
	Church string `json:"church" validate:"max=100"`
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{
		db:        db,
		validator: validator.New(),
	}
}

// requireOperator resolves the caller and verifies directory-write privilege.
// Identity alone is not enough: the role field these handlers write is the
// same one the ledger engine gates on, so only operators may touch it.
func (s *AccountService) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	callerID, ok := r.Context().Value("userID").(string)
	if !ok || callerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return false
	}

	var caller models.Account
	err := s.db.QueryRowContext(r.Context(), "SELECT id, role FROM users WHERE id = $1", callerID).
		Scan(&caller.ID, &caller.Role)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to resolve caller %s: %v", callerID, err)
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return false
	}
	if !caller.IsOperator() {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return false
	}
	return true
}

// ListAccounts returns directory entries
// @Summary List accounts
// @Description List accounts with optional role and group filters
// @Tags accounts
// @Produce json
// @Param role query string false "Filter by role"
// @Param group query string false "Filter by group"
// @Success 200 {object} object{accounts=[]models.Account,count=int}
// @Router /accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	group := r.URL.Query().Get("group")

	var conditions []string
	var args []interface{}
	argIndex := 1

	query := `
		SELECT id, username, name, role, COALESCE(group_name, ''), COALESCE(grade, ''),
		       COALESCE(gender, ''), COALESCE(church, ''), current_talent, max_talent, created_at, updated_at
		FROM users`

	if role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIndex))
		args = append(args, role)
		argIndex++
	}
	if group != "" {
		conditions = append(conditions, fmt.Sprintf("group_name = $%d", argIndex))
		args = append(args, group)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY role ASC, username ASC"

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list accounts: %v", err)
		SendErrorResponse(w, "Failed to list accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []accountView{}
	for rows.Next() {
		var a accountView
		if err := rows.Scan(&a.ID, &a.Username, &a.Name, &a.Role, &a.Group, &a.Grade,
			&a.Gender, &a.Church, &a.CurrentTalent, &a.MaxTalent, &a.CreatedAt, &a.UpdatedAt); err != nil {
			log.Printf("[ACCOUNT] Failed to scan account: %v", err)
			SendErrorResponse(w, "Failed to list accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount returns one directory entry
// @Summary Get account by ID
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{id} [get]
func (s *AccountService) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var a accountView
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, username, name, role, COALESCE(group_name, ''), COALESCE(grade, ''),
		       COALESCE(gender, ''), COALESCE(church, ''), current_talent, max_talent, created_at, updated_at
		FROM users
		WHERE id = $1`, id).
		Scan(&a.ID, &a.Username, &a.Name, &a.Role, &a.Group, &a.Grade,
			&a.Gender, &a.Church, &a.CurrentTalent, &a.MaxTalent, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[ACCOUNT] Failed to fetch account %s: %v", id, err)
		SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

// CreateAccount registers a new directory entry
// @Summary Create account
// @Description Create a new account; talent counters start at zero
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account data"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w, r) {
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateAccountRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[ACCOUNT] Password hashing failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO users (id, username, password, name, role, group_name, grade, gender, church,
		                   current_talent, max_talent, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 1, $10, $10)`,
		id, strings.ToLower(req.Username), hashedPassword, req.Name, req.Role,
		req.Group, req.Grade, req.Gender, req.Church, now)
	if err != nil {
		log.Printf("[ACCOUNT] Account creation failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Username already exists", http.StatusConflict, nil)
		return
	}

	log.Printf("[ACCOUNT] Account created - ID: %s, Username: %s, Role: %s", id, req.Username, req.Role)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(accountView{
		ID: id, Username: strings.ToLower(req.Username), Name: req.Name, Role: req.Role,
		Group: req.Group, Grade: req.Grade, Gender: req.Gender, Church: req.Church,
		CreatedAt: now, UpdatedAt: now,
	})
}

// UpdateAccount edits directory fields only
// @Summary Update account
// @Description Update directory fields; talent counters are not editable here
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body UpdateAccountRequest true "Fields to update"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{id} [put]
func (s *AccountService) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w, r) {
		return
	}

	id := chi.URLParam(r, "id")

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req UpdateAccountRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE users
		SET name = COALESCE(NULLIF($1, ''), name),
		    role = COALESCE(NULLIF($2, ''), role),
		    group_name = $3,
		    grade = $4,
		    gender = $5,
		    church = $6,
		    updated_at = $7
		WHERE id = $8`,
		req.Name, req.Role, req.Group, req.Grade, req.Gender, req.Church, time.Now().UTC(), id)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to update account %s: %v", id, err)
		SendErrorResponse(w, "Failed to update account", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Account updated"})
}

// accountView is the directory response shape (no password, no version).
type accountView struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Group         string    `json:"group,omitempty"`
	Grade         string    `json:"grade,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	Church        string    `json:"church,omitempty"`
	CurrentTalent int64     `json:"current_talent"`
	MaxTalent     int64     `json:"max_talent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
