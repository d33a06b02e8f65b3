package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountColumns() []string {
	return []string{
		"id", "username", "name", "role", "group_name", "grade", "gender", "church",
		"current_talent", "max_talent", "created_at", "updated_at",
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asCaller(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func expectCallerRole(mock sqlmock.Sqlmock, id, role string) {
	mock.ExpectQuery("SELECT id, role FROM users").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow(id, role))
}

func TestAccountService_ListAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	now := time.Now()

	t.Run("no filters", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, name, role").
			WillReturnRows(sqlmock.NewRows(accountColumns()).
				AddRow("teacher-1", "teacher_kim", "Teacher Kim", "teacher", "", "", "", "", 0, 0, now, now).
				AddRow("student-1", "alice", "Alice", "student", "red", "5", "F", "", 10, 20, now, now))

		r := httptest.NewRequest("GET", "/api/v1/accounts", nil)
		w := httptest.NewRecorder()

		service.ListAccounts(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Accounts []accountView `json:"accounts"`
			Count    int           `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, "alice", response.Accounts[1].Username)
	})

	t.Run("role and group filters bind in order", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, name, role").
			WithArgs("student", "red").
			WillReturnRows(sqlmock.NewRows(accountColumns()).
				AddRow("student-1", "alice", "Alice", "student", "red", "", "", "", 10, 20, now, now))

		r := httptest.NewRequest("GET", "/api/v1/accounts?role=student&group=red", nil)
		w := httptest.NewRecorder()

		service.ListAccounts(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_GetAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, name, role").
			WithArgs("student-1").
			WillReturnRows(sqlmock.NewRows(accountColumns()).
				AddRow("student-1", "alice", "Alice", "student", "red", "", "", "", 10, 20, now, now))

		r := withURLParam(httptest.NewRequest("GET", "/api/v1/accounts/student-1", nil), "id", "student-1")
		w := httptest.NewRecorder()

		service.GetAccount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var account accountView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
		assert.Equal(t, "alice", account.Username)
		assert.Equal(t, int64(10), account.CurrentTalent)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, name, role").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(accountColumns()))

		r := withURLParam(httptest.NewRequest("GET", "/api/v1/accounts/ghost", nil), "id", "ghost")
		w := httptest.NewRecorder()

		service.GetAccount(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAccountService_CreateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	service := NewAccountService(db)

	t.Run("creates with zeroed counters", func(t *testing.T) {
		expectCallerRole(mock, "admin-1", "admin")
		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "alice", sqlmock.AnyArg(), "Alice", "student",
				"red", "5", "F", "Grace", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := CreateAccountRequest{
			Username: "Alice",
			Password: "password123",
			Name:     "Alice",
			Role:     "student",
			Group:    "red",
			Grade:    "5",
			Gender:   "F",
			Church:   "Grace",
		}
		body, _ := json.Marshal(req)
		r := asCaller(httptest.NewRequest("POST", "/api/v1/accounts", bytes.NewBuffer(body)), "admin-1")
		w := httptest.NewRecorder()

		service.CreateAccount(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)

		var account accountView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
		assert.Equal(t, "alice", account.Username)
		assert.Zero(t, account.CurrentTalent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username", func(t *testing.T) {
		expectCallerRole(mock, "admin-1", "admin")
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(assert.AnError)

		req := CreateAccountRequest{
			Username: "alice",
			Password: "password123",
			Name:     "Alice",
			Role:     "student",
		}
		body, _ := json.Marshal(req)
		r := asCaller(httptest.NewRequest("POST", "/api/v1/accounts", bytes.NewBuffer(body)), "admin-1")
		w := httptest.NewRecorder()

		service.CreateAccount(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid role", func(t *testing.T) {
		expectCallerRole(mock, "admin-1", "admin")

		req := CreateAccountRequest{
			Username: "alice",
			Password: "password123",
			Name:     "Alice",
			Role:     "principal",
		}
		body, _ := json.Marshal(req)
		r := asCaller(httptest.NewRequest("POST", "/api/v1/accounts", bytes.NewBuffer(body)), "admin-1")
		w := httptest.NewRecorder()

		service.CreateAccount(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("student caller cannot create accounts", func(t *testing.T) {
		expectCallerRole(mock, "student-1", "student")

		req := CreateAccountRequest{
			Username: "newadmin",
			Password: "password123",
			Name:     "New Admin",
			Role:     "admin",
		}
		body, _ := json.Marshal(req)
		r := asCaller(httptest.NewRequest("POST", "/api/v1/accounts", bytes.NewBuffer(body)), "student-1")
		w := httptest.NewRecorder()

		service.CreateAccount(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_UpdateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)

	t.Run("updates directory fields", func(t *testing.T) {
		expectCallerRole(mock, "teacher-1", "teacher")
		mock.ExpectExec("UPDATE users").
			WithArgs("Alice Park", "", "blue", "6", "F", "Grace", sqlmock.AnyArg(), "student-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := UpdateAccountRequest{Name: "Alice Park", Group: "blue", Grade: "6", Gender: "F", Church: "Grace"}
		r := withURLParam(httptest.NewRequest("PUT", "/api/v1/accounts/student-1", marshalBody(t, req)), "id", "student-1")
		r = asCaller(r, "teacher-1")
		w := httptest.NewRecorder()

		service.UpdateAccount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		expectCallerRole(mock, "teacher-1", "teacher")
		mock.ExpectExec("UPDATE users").
			WillReturnResult(sqlmock.NewResult(0, 0))

		req := UpdateAccountRequest{Name: "Nobody"}
		r := withURLParam(httptest.NewRequest("PUT", "/api/v1/accounts/ghost", marshalBody(t, req)), "id", "ghost")
		r = asCaller(r, "teacher-1")
		w := httptest.NewRecorder()

		service.UpdateAccount(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("student cannot promote their own role", func(t *testing.T) {
		expectCallerRole(mock, "student-1", "student")

		req := UpdateAccountRequest{Role: "admin"}
		r := withURLParam(httptest.NewRequest("PUT", "/api/v1/accounts/student-1", marshalBody(t, req)), "id", "student-1")
		r = asCaller(r, "student-1")
		w := httptest.NewRecorder()

		service.UpdateAccount(w, r)

		// forbidden, and no UPDATE ever reached the database
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing identity", func(t *testing.T) {
		req := UpdateAccountRequest{Name: "Nobody"}
		r := withURLParam(httptest.NewRequest("PUT", "/api/v1/accounts/student-1", marshalBody(t, req)), "id", "student-1")
		w := httptest.NewRecorder()

		service.UpdateAccount(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func marshalBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}
