package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/levelup/backend/internal/models"
	"github.com/levelup/backend/internal/services"
	"github.com/levelup/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*TalentHandler, *store.MemoryLedgerStore) {
	memStore := store.NewMemoryLedgerStore()
	memStore.SeedAccount(models.Account{ID: "teacher-1", Username: "teacher_kim", Name: "Teacher Kim", Role: models.RoleTeacher})
	memStore.SeedAccount(models.Account{ID: "student-1", Username: "alice", Name: "Alice", Role: models.RoleStudent, Group: "red"})
	memStore.SeedAccount(models.Account{ID: "student-2", Username: "bob", Name: "Bob", Role: models.RoleStudent, Group: "red"})

	service := services.NewTalentService(memStore, nil)
	return NewTalentHandler(service), memStore
}

func authedRequest(method, target string, payload any, userID string) *http.Request {
	body, _ := json.Marshal(payload)
	r := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	if userID != "" {
		r = r.WithContext(context.WithValue(r.Context(), "userID", userID))
	}
	return r
}

func TestTalentHandler_Grant(t *testing.T) {
	t.Run("grants and returns the transaction", func(t *testing.T) {
		handler, memStore := newTestHandler()

		req := GrantRequest{StudentID: "student-1", Amount: 10, Reason: "quiz"}
		r := authedRequest("POST", "/api/v1/talents/grant", req, "teacher-1")
		w := httptest.NewRecorder()

		handler.Grant(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response struct {
			Success     bool                     `json:"success"`
			Transaction models.TalentTransaction `json:"transaction"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.Equal(t, int64(10), response.Transaction.Amount)
		assert.NotEmpty(t, response.Transaction.ID)

		account, err := memStore.GetAccount(context.Background(), "student-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), account.CurrentTalent)
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GrantRequest{StudentID: "student-1", Amount: 10}
		r := authedRequest("POST", "/api/v1/talents/grant", req, "")
		w := httptest.NewRecorder()

		handler.Grant(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("student caller is forbidden", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GrantRequest{StudentID: "student-1", Amount: 10}
		r := authedRequest("POST", "/api/v1/talents/grant", req, "student-2")
		w := httptest.NewRecorder()

		handler.Grant(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown student returns 404", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GrantRequest{StudentID: "ghost", Amount: 10}
		r := authedRequest("POST", "/api/v1/talents/grant", req, "teacher-1")
		w := httptest.NewRecorder()

		handler.Grant(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GrantRequest{StudentID: "student-1", Amount: -5}
		r := authedRequest("POST", "/api/v1/talents/grant", req, "teacher-1")
		w := httptest.NewRecorder()

		handler.Grant(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		handler, _ := newTestHandler()

		r := httptest.NewRequest("POST", "/api/v1/talents/grant",
			bytes.NewBufferString(`{"studentId":"student-1","amount":10,"bogus":true}`))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "teacher-1"))
		w := httptest.NewRecorder()

		handler.Grant(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTalentHandler_Revoke(t *testing.T) {
	handler, memStore := newTestHandler()

	grant := GrantRequest{StudentID: "student-1", Amount: 20}
	w := httptest.NewRecorder()
	handler.Grant(w, authedRequest("POST", "/api/v1/talents/grant", grant, "teacher-1"))
	require.Equal(t, http.StatusCreated, w.Code)

	revoke := GrantRequest{StudentID: "student-1", Amount: 8, Reason: "late"}
	w = httptest.NewRecorder()
	handler.Revoke(w, authedRequest("POST", "/api/v1/talents/revoke", revoke, "teacher-1"))

	assert.Equal(t, http.StatusCreated, w.Code)

	account, err := memStore.GetAccount(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), account.CurrentTalent)
	assert.Equal(t, int64(20), account.MaxTalent)
}

func TestTalentHandler_GroupGrant(t *testing.T) {
	t.Run("distributes across the group", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GroupGrantRequest{Group: "red", TotalAmount: 11, Reason: "relay"}
		w := httptest.NewRecorder()
		handler.GroupGrant(w, authedRequest("POST", "/api/v1/talents/group-grant", req, "teacher-1"))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Transactions []models.TalentTransaction `json:"transactions"`
			Failed       []struct {
				StudentID string `json:"student_id"`
			} `json:"failed"`
			Summary map[string]int `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Transactions, 2)
		assert.Empty(t, response.Failed)
		assert.Equal(t, 2, response.Summary["succeeded"])
		assert.Equal(t, 0, response.Summary["failed"])

		// Alice sorts before Bob, so she carries the odd unit
		assert.Equal(t, int64(6), response.Transactions[0].Amount)
		assert.Equal(t, int64(5), response.Transactions[1].Amount)
	})

	t.Run("unknown group returns 404", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GroupGrantRequest{Group: "green", TotalAmount: 10}
		w := httptest.NewRecorder()
		handler.GroupGrant(w, authedRequest("POST", "/api/v1/talents/group-grant", req, "teacher-1"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing group fails validation", func(t *testing.T) {
		handler, _ := newTestHandler()

		req := GroupGrantRequest{TotalAmount: 10}
		w := httptest.NewRecorder()
		handler.GroupGrant(w, authedRequest("POST", "/api/v1/talents/group-grant", req, "teacher-1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
