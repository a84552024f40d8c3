// Package ledger owns user balances. Every mutation is a single conditional
// UPDATE, so the balance can never go negative no matter how many debits race.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rammfall-education/api-fine/internal/apperr"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultCeiling is the largest single top-up accepted.
const DefaultCeiling int64 = 1_000_000

// Ledger credits, debits and reads balances.
type Ledger struct {
	tx      *database.Transactor
	ceiling int64
	logger  *zap.Logger
}

func New(tx *database.Transactor, ceiling int64, logger *zap.Logger) *Ledger {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{tx: tx, ceiling: ceiling, logger: logger.Named("ledger")}
}

// Ceiling is the largest amount Credit accepts.
func (l *Ledger) Ceiling() int64 { return l.ceiling }

// Credit tops up the user's balance and returns the new amount.
func (l *Ledger) Credit(ctx context.Context, userID uint, amount int64) (int64, error) {
	if err := l.validateTopUp(amount); err != nil {
		return 0, err
	}

	var balance int64
	err := l.tx.Do(ctx, "credit balance", func(tx *gorm.DB) error {
		var err error
		balance, err = CreditTx(tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("balance credited",
		zap.Uint("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
	)
	return balance, nil
}

// Debit withdraws amount if, and only if, the balance covers it.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperr.Field(apperr.KindInvalidInput, "amount", "amount must be positive")
	}

	var balance int64
	err := l.tx.Do(ctx, "debit balance", func(tx *gorm.DB) error {
		var err error
		balance, err = DebitTx(tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Read returns the current balance. Display only: never use the result to
// decide whether a debit may happen.
func (l *Ledger) Read(ctx context.Context, userID uint) (int64, error) {
	return readTx(l.tx.DB(ctx), userID)
}

func (l *Ledger) validateTopUp(amount int64) error {
	if amount < 1 {
		return apperr.Field(apperr.KindInvalidInput, "amount", "amount must be at least 1")
	}
	if amount > l.ceiling {
		return apperr.Field(apperr.KindInvalidInput, "amount", fmt.Sprintf("amount must not exceed %d", l.ceiling))
	}
	return nil
}

// OpenTx creates the zero balance row for a new user.
func OpenTx(tx *gorm.DB, userID uint) error {
	if err := tx.Create(&models.Balance{UserID: userID}).Error; err != nil {
		if database.IsDuplicate(err) {
			return apperr.New(apperr.KindConflict, "balance already exists")
		}
		return err
	}
	return nil
}

// CreditTx increments the balance inside the caller's transaction.
func CreditTx(tx *gorm.DB, userID uint, amount int64) (int64, error) {
	res := tx.Model(&models.Balance{}).
		Where("user_id = ?", userID).
		Update("amount", gorm.Expr("amount + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, apperr.New(apperr.KindNotFound, "balance does not exist")
	}
	return readTx(tx, userID)
}

// DebitTx decrements the balance inside the caller's transaction. The funds
// check and the decrement are one statement.
func DebitTx(tx *gorm.DB, userID uint, amount int64) (int64, error) {
	res := tx.Model(&models.Balance{}).
		Where("user_id = ? AND amount >= ?", userID, amount).
		Update("amount", gorm.Expr("amount - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := readTx(tx, userID); err != nil {
			return 0, err
		}
		return 0, apperr.New(apperr.KindInsufficientFunds, "not enough money")
	}
	return readTx(tx, userID)
}

func readTx(tx *gorm.DB, userID uint) (int64, error) {
	var b models.Balance
	if err := tx.Where("user_id = ?", userID).Take(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.New(apperr.KindNotFound, "balance does not exist")
		}
		return 0, err
	}
	return b.Amount, nil
}
