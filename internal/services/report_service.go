package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/levelup/backend/internal/config"
	"github.com/levelup/backend/internal/models"
	"github.com/levelup/backend/internal/store"
)

const groupSummaryCacheKey = "report:group_summary"

// ReportService serves the read-only reporting surface. Reads bypass the
// engine and go straight to the store's query interface, but still require
// operator privilege.
type ReportService struct {
	store    store.LedgerStore
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewReportService(ledgerStore store.LedgerStore, redisClient *redis.Client, cfg *config.LedgerConfig) *ReportService {
	return &ReportService{
		store:    ledgerStore,
		redis:    redisClient,
		cacheTTL: cfg.GroupCacheTTL,
	}
}

// GroupSummaryReport is the aggregate view over all student balances.
type GroupSummaryReport struct {
	Groups       []models.GroupSummary `json:"groups"`
	TotalCurrent int64                 `json:"total_current_talent"`
	TotalMax     int64                 `json:"total_max_talent"`
}

// ListTransactions returns ledger history with optional filters
// @Summary List talent transactions
// @Description Filtered, paginated transaction history, newest first
// @Tags reports
// @Produce json
// @Param start query string false "Start date (YYYY-MM-DD)"
// @Param end query string false "End date (YYYY-MM-DD, inclusive)"
// @Param group query string false "Student group"
// @Param studentId query string false "Student ID"
// @Param studentName query string false "Substring of student name"
// @Param teacherId query string false "Operator ID"
// @Param type query string false "Transaction type"
// @Success 200 {object} object{transactions=[]models.TalentTransaction,count=int}
// @Router /transactions [get]
func (rs *ReportService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := r.Context().Value("userID").(string)
	if !ok || operatorID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if _, err := authorizeOperator(r.Context(), rs.store, operatorID); err != nil {
		SendLedgerError(w, err)
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	transactions, err := rs.store.QueryTransactions(r.Context(), filter)
	if err != nil {
		log.Printf("[REPORT] Failed to query transactions: %v", err)
		SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// AccountBalances returns the per-account balance report
// @Summary Account balance report
// @Description Balance subset for every account of the given role
// @Tags reports
// @Produce json
// @Param role query string false "Account role (default student)"
// @Success 200 {array} models.AccountBalance
// @Router /reports/balances [get]
func (rs *ReportService) AccountBalances(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := r.Context().Value("userID").(string)
	if !ok || operatorID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if _, err := authorizeOperator(r.Context(), rs.store, operatorID); err != nil {
		SendLedgerError(w, err)
		return
	}

	role := r.URL.Query().Get("role")
	if role == "" {
		role = models.RoleStudent
	}
	if role != models.RoleStudent && role != models.RoleTeacher && role != models.RoleAdmin {
		SendErrorResponse(w, "invalid role", http.StatusBadRequest, nil)
		return
	}

	balances, err := rs.store.QueryAccountBalances(r.Context(), role)
	if err != nil {
		log.Printf("[REPORT] Failed to query balances: %v", err)
		SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balances)
}

// GroupSummary returns per-group totals plus overall sums
// @Summary Group talent summary
// @Description Member counts and current/max talent sums per group
// @Tags reports
// @Produce json
// @Success 200 {object} GroupSummaryReport
// @Router /reports/groups [get]
func (rs *ReportService) GroupSummary(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := r.Context().Value("userID").(string)
	if !ok || operatorID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if _, err := authorizeOperator(r.Context(), rs.store, operatorID); err != nil {
		SendLedgerError(w, err)
		return
	}

	if cached := rs.cachedSummary(r.Context()); cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	report, err := rs.buildGroupSummary(r.Context())
	if err != nil {
		log.Printf("[REPORT] Failed to build group summary: %v", err)
		SendLedgerError(w, err)
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		SendErrorResponse(w, "Failed to build report", http.StatusInternalServerError, nil)
		return
	}
	rs.cacheSummary(r.Context(), data)

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (rs *ReportService) buildGroupSummary(ctx context.Context) (*GroupSummaryReport, error) {
	balances, err := rs.store.QueryAccountBalances(ctx, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	byGroup := map[string]*models.GroupSummary{}
	report := &GroupSummaryReport{Groups: []models.GroupSummary{}}
	for _, b := range balances {
		report.TotalCurrent += b.CurrentTalent
		report.TotalMax += b.MaxTalent

		summary, ok := byGroup[b.Group]
		if !ok {
			summary = &models.GroupSummary{Group: b.Group}
			byGroup[b.Group] = summary
		}
		summary.MemberCount++
		summary.CurrentTalent += b.CurrentTalent
		summary.MaxTalent += b.MaxTalent
	}

	for _, summary := range byGroup {
		report.Groups = append(report.Groups, *summary)
	}
	sort.Slice(report.Groups, func(i, j int) bool {
		return report.Groups[i].Group < report.Groups[j].Group
	})
	return report, nil
}

func (rs *ReportService) cachedSummary(ctx context.Context) []byte {
	if rs.redis == nil {
		return nil
	}
	data, err := rs.redis.Get(ctx, groupSummaryCacheKey).Bytes()
	if err != nil {
		return nil
	}
	return data
}

func (rs *ReportService) cacheSummary(ctx context.Context, data []byte) {
	if rs.redis == nil {
		return
	}
	if err := rs.redis.Set(ctx, groupSummaryCacheKey, data, rs.cacheTTL).Err(); err != nil {
		log.Printf("[REPORT] Failed to cache group summary: %v", err)
	}
}

func parseTransactionFilter(r *http.Request) (models.TransactionFilter, error) {
	q := r.URL.Query()
	filter := models.TransactionFilter{
		Group:       q.Get("group"),
		StudentID:   q.Get("studentId"),
		StudentName: q.Get("studentName"),
		TeacherID:   q.Get("teacherId"),
		Type:        q.Get("type"),
	}

	if start := q.Get("start"); start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return filter, err
		}
		filter.Start = &t
	}
	if end := q.Get("end"); end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return filter, err
		}
		// inclusive through the end of the day
		eod := t.Add(24*time.Hour - time.Nanosecond)
		filter.End = &eod
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			filter.Offset = n
		}
	}
	return filter, nil
}
