package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/levelup/backend/internal/ledger"
	"github.com/levelup/backend/internal/services"
)

type TalentHandler struct {
	service   *services.TalentService
	validator *services.ValidationHelper
}

func NewTalentHandler(service *services.TalentService) *TalentHandler {
	return &TalentHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type GrantRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=200"`
}

type GroupGrantRequest struct {
	Group       string `json:"group" validate:"required"`
	TotalAmount int64  `json:"totalAmount" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"max=200"`
}

// Grant gives talent to one student
// @Summary Grant talent to a student
// @Description Record an individual_give transaction and raise both counters
// @Tags talents
// @Accept json
// @Produce json
// @Param request body GrantRequest true "Grant data"
// @Success 201 {object} object{success=bool,transaction=models.TalentTransaction}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /talents/grant [post]
func (h *TalentHandler) Grant(w http.ResponseWriter, r *http.Request) {
	operatorID, req, ok := h.decodeGrant(w, r)
	if !ok {
		return
	}

	tx, err := h.service.GrantIndividual(r.Context(), operatorID, req.StudentID, req.Amount, req.Reason)
	if err != nil {
		log.Printf("[TALENT] Grant failed for student %s: %v", req.StudentID, err)
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": tx,
	})
}

// Revoke takes talent from one student
// @Summary Revoke talent from a student
// @Description Record an individual_take transaction; max_talent is untouched
// @Tags talents
// @Accept json
// @Produce json
// @Param request body GrantRequest true "Revoke data"
// @Success 201 {object} object{success=bool,transaction=models.TalentTransaction}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /talents/revoke [post]
func (h *TalentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	operatorID, req, ok := h.decodeGrant(w, r)
	if !ok {
		return
	}

	tx, err := h.service.RevokeIndividual(r.Context(), operatorID, req.StudentID, req.Amount, req.Reason)
	if err != nil {
		log.Printf("[TALENT] Revoke failed for student %s: %v", req.StudentID, err)
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": tx,
	})
}

// GroupGrant distributes talent across a group
// @Summary Grant talent to a whole group
// @Description Split totalAmount evenly across the group's students; failures are reported per member while committed members stay committed
// @Tags talents
// @Accept json
// @Produce json
// @Param request body GroupGrantRequest true "Group grant data"
// @Success 200 {object} object{transactions=[]models.TalentTransaction,failed=[]ledger.MemberFailure,summary=object}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /talents/group-grant [post]
func (h *TalentHandler) GroupGrant(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := operatorFromContext(w, r)
	if !ok {
		return
	}

	var req GroupGrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := h.service.GrantGroup(r.Context(), operatorID, req.Group, req.TotalAmount, req.Reason)

	var partial *ledger.PartialFailureError
	if err != nil && !errors.As(err, &partial) {
		log.Printf("[TALENT] Group grant failed for group %s: %v", req.Group, err)
		services.SendLedgerError(w, err)
		return
	}

	failed := []ledger.MemberFailure{}
	if partial != nil {
		log.Printf("[TALENT] Group grant partially failed for group %s: %v", req.Group, partial)
		failed = partial.Failures
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"failed":       failed,
		"summary": map[string]int{
			"total":     len(transactions) + len(failed),
			"succeeded": len(transactions),
			"failed":    len(failed),
		},
	})
}

func (h *TalentHandler) decodeGrant(w http.ResponseWriter, r *http.Request) (string, *GrantRequest, bool) {
	operatorID, ok := operatorFromContext(w, r)
	if !ok {
		return "", nil, false
	}

	var req GrantRequest
	if !decodeJSON(w, r, &req) {
		return "", nil, false
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return "", nil, false
	}
	return operatorID, &req, true
}

func operatorFromContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	operatorID, ok := r.Context().Value("userID").(string)
	if !ok || operatorID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return operatorID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
