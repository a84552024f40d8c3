package router_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rammfall-education/api-fine/internal/config"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/database/dbtest"
	"github.com/rammfall-education/api-fine/internal/router"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "adminpass1"
)

type server struct {
	t      *testing.T
	engine *gin.Engine
}

type reply struct {
	Status int
	Code   int             `json:"code"`
	Kind   string          `json:"kind"`
	Field  string          `json:"field"`
	Msg    string          `json:"message"`
	Data   json.RawMessage `json:"data"`
	Raw    []byte          `json:"-"`
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode},
		JWT:      config.JWTConfig{Secret: "test-secret", Issuer: "api-fine", ExpireHours: 1},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
		Ledger:   config.LedgerConfig{TopUpCeiling: 1_000_000},
		Admin:    config.AdminConfig{Name: "admin", Email: adminEmail, Password: adminPassword},
	}

	db := dbtest.New(t)
	tx := database.NewTransactor(db, 10*time.Second, zap.NewNop())
	svc := router.NewServices(cfg, tx, zap.NewNop())
	_, err := svc.Users.SeedAdmin(context.Background(), cfg.Admin)
	require.NoError(t, err)

	return &server{t: t, engine: router.SetupRouter(cfg, svc, zap.NewNop())}
}

func (s *server) do(method, path, token string, body interface{}) reply {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	r := reply{Status: w.Code, Raw: w.Body.Bytes()}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &r))
	}
	return r
}

func (s *server) login(email, password string) string {
	s.t.Helper()
	r := s.do(http.MethodPost, "/api/login", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, r.Status, string(r.Raw))
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(r.Data, &data))
	return data.Token
}

// registerUser creates an account and returns its id and token.
func (s *server) registerUser(name, email string) (uint, string) {
	s.t.Helper()
	r := s.do(http.MethodPost, "/api/register", "", gin.H{"name": name, "email": email, "password": "password1"})
	require.Equal(s.t, http.StatusCreated, r.Status, string(r.Raw))
	var data struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(r.Data, &data))
	return data.User.ID, s.login(email, "password1")
}

// deadlineIn formats a deadline the given number of months from today.
func deadlineIn(months int) string {
	return time.Now().AddDate(0, months, 0).Format(util.DateLayout)
}

func (s *server) issue(adminToken string, userID uint, amount int64, description string) uint {
	s.t.Helper()
	return s.issueDue(adminToken, userID, amount, description, deadlineIn(1))
}

func (s *server) issueDue(adminToken string, userID uint, amount int64, description, deadline string) uint {
	s.t.Helper()
	r := s.do(http.MethodPost, "/api/fine", adminToken, gin.H{
		"userId": userID, "description": description, "amount": amount, "deadline": deadline,
	})
	require.Equal(s.t, http.StatusCreated, r.Status, string(r.Raw))
	var data struct {
		Fine struct {
			ID uint `json:"id"`
		} `json:"fine"`
	}
	require.NoError(s.t, json.Unmarshal(r.Data, &data))
	return data.Fine.ID
}

func balanceOf(t *testing.T, r reply) int64 {
	t.Helper()
	var data struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &data))
	return data.Balance
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)

	r := s.do(http.MethodPost, "/api/register", "", gin.H{"name": "Alice", "email": "alice@example.com", "password": "password1"})
	require.Equal(t, http.StatusCreated, r.Status)

	r = s.do(http.MethodPost, "/api/register", "", gin.H{"name": "Alice", "email": "alice@example.com", "password": "password1"})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "email", r.Field)

	r = s.do(http.MethodPost, "/api/login", "", gin.H{"email": "nobody@example.com", "password": "password1"})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "email", r.Field)

	r = s.do(http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com", "password": "password2"})
	assert.Equal(t, http.StatusForbidden, r.Status)
	assert.Equal(t, "password", r.Field)

	r = s.do(http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, r.Status)

	token := s.login("alice@example.com", "password1")
	r = s.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, int64(0), balanceOf(t, r))
}

func TestUnauthorized(t *testing.T) {
	s := newServer(t)

	r := s.do(http.MethodGet, "/api/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)

	r = s.do(http.MethodGet, "/api/balance", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)
}

func TestTokenSources(t *testing.T) {
	s := newServer(t)
	_, token := s.registerUser("Alice", "alice@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("token", token)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/balance?token="+token, nil)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccount(t *testing.T) {
	s := newServer(t)
	_, token := s.registerUser("Alice", "alice@example.com")
	s.registerUser("Bobby", "bob@example.com")

	r := s.do(http.MethodPut, "/api/account/email", token, gin.H{"email": "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = s.do(http.MethodPut, "/api/account/email", token, gin.H{"email": "alice@new.example"})
	assert.Equal(t, http.StatusOK, r.Status)

	r = s.do(http.MethodPut, "/api/account/password", token, gin.H{"oldPassword": "wrong-pass", "password": "password2"})
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = s.do(http.MethodPut, "/api/account/password", token, gin.H{"oldPassword": "password1", "password": "password1"})
	assert.Equal(t, http.StatusPaymentRequired, r.Status)

	r = s.do(http.MethodPut, "/api/account/password", token, gin.H{"oldPassword": "password1", "password": "password2"})
	assert.Equal(t, http.StatusOK, r.Status)
	s.login("alice@new.example", "password2")
}

func TestPayFlow(t *testing.T) {
	s := newServer(t)
	admin := s.login(adminEmail, adminPassword)
	userID, token := s.registerUser("Alice", "alice@example.com")

	fineID := s.issue(admin, userID, 500, "Parking")
	path := "/api/pay/fine/" + itoa(fineID)

	r := s.do(http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "insufficient_funds", r.Kind)

	r = s.do(http.MethodPost, "/api/balance/top-up", token, gin.H{"amount": 500})
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, int64(500), balanceOf(t, r))

	r = s.do(http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, r.Status, string(r.Raw))
	assert.Equal(t, int64(0), balanceOf(t, r))

	r = s.do(http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusConflict, r.Status)
	assert.Equal(t, "already_paid", r.Kind)

	r = s.do(http.MethodGet, "/api/balance", token, nil)
	assert.Equal(t, int64(0), balanceOf(t, r))

	var fine struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	r = s.do(http.MethodGet, "/api/fines/"+itoa(fineID), token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	require.NoError(t, json.Unmarshal(r.Data, &fine))
	assert.Equal(t, fineID, fine.ID)
	assert.Equal(t, "completed", fine.Status)

	_, bob := s.registerUser("Bobby", "bob@example.com")
	r = s.do(http.MethodGet, "/api/fines/"+itoa(fineID), bob, nil)
	assert.Equal(t, http.StatusNotFound, r.Status, "fines of other users are hidden")

	r = s.do(http.MethodPost, "/api/pay/fine/999", token, nil)
	assert.Equal(t, http.StatusNotFound, r.Status)

	r = s.do(http.MethodPost, "/api/pay/fine/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestConcurrentPayOverHTTP(t *testing.T) {
	s := newServer(t)
	admin := s.login(adminEmail, adminPassword)
	userID, token := s.registerUser("Alice", "alice@example.com")
	fineID := s.issue(admin, userID, 400, "Parking")
	s.do(http.MethodPost, "/api/balance/top-up", token, gin.H{"amount": 1000})

	const n = 8
	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/pay/fine/"+itoa(fineID), nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			s.engine.ServeHTTP(w, req)
			statuses[i] = w.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range statuses {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusConflict, code)
		}
	}
	assert.Equal(t, 1, ok)

	r := s.do(http.MethodGet, "/api/balance", token, nil)
	assert.Equal(t, int64(600), balanceOf(t, r))
}

func TestDisputeFlow(t *testing.T) {
	s := newServer(t)
	admin := s.login(adminEmail, adminPassword)
	userID, token := s.registerUser("Alice", "alice@example.com")
	fineID := s.issue(admin, userID, 100, "Speeding")

	r := s.do(http.MethodPut, "/api/status/"+itoa(fineID), admin, gin.H{"status": "canceled"})
	assert.Equal(t, http.StatusBadRequest, r.Status, "not pending yet")

	r = s.do(http.MethodPost, "/api/discard/"+itoa(fineID), token, nil)
	require.Equal(t, http.StatusOK, r.Status)

	r = s.do(http.MethodPost, "/api/discard/"+itoa(fineID), token, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "invalid_transition", r.Kind)

	r = s.do(http.MethodPut, "/api/status/"+itoa(fineID), token, gin.H{"status": "canceled"})
	assert.Equal(t, http.StatusForbidden, r.Status)

	r = s.do(http.MethodPut, "/api/status/"+itoa(fineID), admin, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "status", r.Field)

	r = s.do(http.MethodPut, "/api/status/"+itoa(fineID), admin, gin.H{"status": "canceled"})
	require.Equal(t, http.StatusOK, r.Status)

	s.do(http.MethodPost, "/api/balance/top-up", token, gin.H{"amount": 100})
	r = s.do(http.MethodPost, "/api/pay/fine/"+itoa(fineID), token, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "invalid_transition", r.Kind)
}

func TestIssueValidation(t *testing.T) {
	s := newServer(t)
	admin := s.login(adminEmail, adminPassword)
	userID, token := s.registerUser("Alice", "alice@example.com")

	r := s.do(http.MethodPost, "/api/fine", admin, gin.H{
		"userId": userID, "description": "x", "amount": -5, "deadline": deadlineIn(1),
	})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "amount", r.Field)

	r = s.do(http.MethodPost, "/api/fine", admin, gin.H{
		"userId": userID, "description": "x", "amount": 5, "deadline": "June",
	})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "deadline", r.Field)

	r = s.do(http.MethodPost, "/api/fine", token, gin.H{
		"userId": userID, "description": "x", "amount": 5, "deadline": deadlineIn(1),
	})
	assert.Equal(t, http.StatusForbidden, r.Status)

	r = s.do(http.MethodGet, "/api/fines", token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.JSONEq(t, "[]", string(r.Data))
}

func TestTopUpBounds(t *testing.T) {
	s := newServer(t)
	_, token := s.registerUser("Alice", "alice@example.com")

	for _, amount := range []int64{-1, 1_000_001} {
		r := s.do(http.MethodPost, "/api/balance/top-up", token, gin.H{"amount": amount})
		assert.Equal(t, http.StatusBadRequest, r.Status)
		assert.Equal(t, "amount", r.Field)
	}

	r := s.do(http.MethodPost, "/api/balance/top-up", token, gin.H{"amount": 1_000_000})
	assert.Equal(t, http.StatusOK, r.Status)

	var limits struct {
		TopUpCeiling int64 `json:"topUpCeiling"`
	}
	r = s.do(http.MethodGet, "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, r.Status)
	require.NoError(t, json.Unmarshal(r.Data, &limits))
	assert.Equal(t, int64(1_000_000), limits.TopUpCeiling)
}

func TestListings(t *testing.T) {
	s := newServer(t)
	admin := s.login(adminEmail, adminPassword)
	aliceID, alice := s.registerUser("Alice", "alice@example.com")
	bobID, _ := s.registerUser("Bobby", "bob@example.com")
	s.issue(admin, aliceID, 100, "Parking downtown")
	discard := s.issue(admin, aliceID, 250, "Speeding")
	s.issue(admin, bobID, 300, "Parking uptown")
	s.do(http.MethodPost, "/api/discard/"+itoa(discard), alice, nil)

	var list []struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
		UserID uint   `json:"userId"`
	}

	r := s.do(http.MethodGet, "/api/fines?statuses=pending", alice, nil)
	require.Equal(t, http.StatusOK, r.Status)
	require.NoError(t, json.Unmarshal(r.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, discard, list[0].ID)

	r = s.do(http.MethodGet, "/api/fines?statuses=bogus", alice, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = s.do(http.MethodGet, "/api/fines?dateFrom=not-a-date", alice, nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "dateFrom", r.Field)

	r = s.do(http.MethodGet, "/api/admin/fines?description=parking", admin, nil)
	require.Equal(t, http.StatusOK, r.Status)
	require.NoError(t, json.Unmarshal(r.Data, &list))
	assert.Len(t, list, 2)

	r = s.do(http.MethodGet, "/api/admin/fines", alice, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)

	var users []struct {
		Name string `json:"name"`
	}
	r = s.do(http.MethodGet, "/api/users?search=bob", admin, nil)
	require.Equal(t, http.StatusOK, r.Status)
	require.NoError(t, json.Unmarshal(r.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Bobby", users[0].Name)

	r = s.do(http.MethodGet, "/api/users", alice, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)
}

func TestExports(t *testing.T) {
	s := newServer(t)
	admin := s.login(adminEmail, adminPassword)
	aliceID, alice := s.registerUser("Alice", "alice@example.com")
	s.issue(admin, aliceID, 12345, "Parking")
	s.issueDue(admin, aliceID, 500, "Unpaid tax", deadlineIn(48))

	r := s.do(http.MethodGet, "/api/admin/fines/export/csv", admin, nil)
	require.Equal(t, http.StatusOK, r.Status)
	rows, err := csv.NewReader(bytes.NewReader(r.Raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "admin exports have no default deadline horizon")
	assert.Equal(t, "Unpaid tax", rows[2][3])
	assert.Equal(t, "Amount", rows[0][4])
	assert.Equal(t, "123.45", rows[1][4])
	assert.Equal(t, "requested", rows[1][5])

	r = s.do(http.MethodGet, "/api/admin/fines/export/xlsx", admin, nil)
	require.Equal(t, http.StatusOK, r.Status)
	f, err := excelize.OpenReader(bytes.NewReader(r.Raw))
	require.NoError(t, err)
	defer f.Close()
	desc, err := f.GetCellValue("Fines", "D2")
	require.NoError(t, err)
	assert.Equal(t, "Parking", desc)

	r = s.do(http.MethodGet, "/api/admin/fines/export/csv", alice, nil)
	assert.Equal(t, http.StatusForbidden, r.Status)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
