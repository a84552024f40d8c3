package fines_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/database/dbtest"
	"github.com/rammfall-education/api-fine/internal/fines"
	"github.com/rammfall-education/api-fine/internal/ledger"
	"github.com/rammfall-education/api-fine/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	db     *gorm.DB
	store  *fines.Store
	pay    *fines.Coordinator
	ledger *ledger.Ledger
	admin  models.Actor
	user   models.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.New(t)
	tr := database.NewTransactor(db, 10*time.Second, nil)

	e := &env{
		db:     db,
		store:  fines.NewStore(tr, nil),
		pay:    fines.NewCoordinator(tr, nil),
		ledger: ledger.New(tr, 0, nil),
	}
	e.admin = e.addUser(t, "admin", models.RoleAdmin)
	e.user = e.addUser(t, "debtor", models.RoleUser)
	return e
}

func (e *env) addUser(t *testing.T, name string, role models.Role) models.Actor {
	t.Helper()
	u := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%d@example.com", name, time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, e.db.Create(&u).Error)
	require.NoError(t, ledger.OpenTx(e.db, u.ID))
	return u.Actor()
}

func (e *env) issue(t *testing.T, amount int64, description string, deadline time.Time) *models.Fine {
	t.Helper()
	f, err := e.store.Issue(context.Background(), e.admin, fines.IssueRequest{
		UserID:      e.user.ID,
		Description: description,
		Amount:      amount,
		Deadline:    deadline,
	})
	require.NoError(t, err)
	return f
}

func (e *env) topUp(t *testing.T, userID uint, amount int64) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), userID, amount)
	require.NoError(t, err)
}

func (e *env) status(t *testing.T, fineID uint) models.FineStatus {
	t.Helper()
	var f models.Fine
	require.NoError(t, e.db.Take(&f, fineID).Error)
	return f.Status
}

func (e *env) balance(t *testing.T, userID uint) int64 {
	t.Helper()
	b, err := e.ledger.Read(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func nextMonth() time.Time {
	return time.Now().AddDate(0, 1, 0)
}
