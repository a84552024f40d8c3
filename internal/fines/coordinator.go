package fines

import (
	"context"
	"errors"
	"time"

	"github.com/rammfall-education/api-fine/internal/apperr"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/ledger"
	"github.com/rammfall-education/api-fine/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// payableStatuses are the states a fine may be paid from.
var payableStatuses = []models.FineStatus{models.StatusRequested, models.StatusPending}

// Receipt is the outcome of a successful payment.
type Receipt struct {
	FineID  uint
	Status  models.FineStatus
	Amount  int64
	Balance int64
	PaidAt  time.Time
}

// Coordinator pays fines: the debit and the completion commit together or not
// at all.
type Coordinator struct {
	tx     *database.Transactor
	logger *zap.Logger
	now    func() time.Time
}

func NewCoordinator(tx *database.Transactor, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{tx: tx, logger: logger.Named("payments"), now: time.Now}
}

// Pay debits the fine amount from the user's balance and completes the fine.
//
// The fine row is the serialization point: it is locked (postgres) or the whole
// write transaction is exclusive (sqlite) before any guard is evaluated, so a
// concurrent second payment sees the completed fine and fails with AlreadyPaid
// rather than debiting again.
func (c *Coordinator) Pay(ctx context.Context, userID, fineID uint) (*Receipt, error) {
	var rc Receipt
	err := c.tx.Do(ctx, "pay fine", func(tx *gorm.DB) error {
		var fine models.Fine
		err := database.ForUpdate(tx).
			Where("id = ? AND user_id = ?", fineID, userID).
			Take(&fine).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "fine does not exist")
			}
			return err
		}
		if err := payable(fine.Status); err != nil {
			return err
		}

		balance, err := ledger.DebitTx(tx, userID, fine.Amount)
		if err != nil {
			return err
		}

		paidAt := c.now().UTC()
		if err := complete(tx, &fine, paidAt); err != nil {
			return err
		}

		rc = Receipt{
			FineID:  fine.ID,
			Status:  models.StatusCompleted,
			Amount:  fine.Amount,
			Balance: balance,
			PaidAt:  paidAt,
		}
		return nil
	})
	if err != nil {
		c.logger.Info("fine payment rejected",
			zap.Uint("fine_id", fineID),
			zap.Uint("user_id", userID),
			zap.String("kind", string(apperr.KindOf(err))),
		)
		return nil, err
	}

	c.logger.Info("fine paid",
		zap.Uint("fine_id", fineID),
		zap.Uint("user_id", userID),
		zap.Int64("amount", rc.Amount),
		zap.Int64("balance", rc.Balance),
	)
	return &rc, nil
}

func payable(status models.FineStatus) error {
	switch {
	case status == models.StatusCompleted:
		return apperr.New(apperr.KindAlreadyPaid, "fine has already been paid")
	case !status.Valid() || status.Terminal():
		return apperr.Newf(apperr.KindInvalidTransition, "fine is %s and cannot be paid", status)
	}
	return nil
}

// complete moves the fine to completed and writes the payment marker. Either
// step failing aborts the caller's transaction, which returns the debit.
func complete(tx *gorm.DB, fine *models.Fine, paidAt time.Time) error {
	res := tx.Model(&models.Fine{}).
		Where("id = ? AND status IN ?", fine.ID, payableStatuses).
		Update("status", models.StatusCompleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var current models.Fine
		if err := tx.Select("status").Take(&current, fine.ID).Error; err != nil {
			return err
		}
		if err := payable(current.Status); err != nil {
			return err
		}
		return apperr.New(apperr.KindConflict, "fine changed during payment")
	}

	payment := models.Payment{
		FineID: fine.ID,
		UserID: fine.UserID,
		Amount: fine.Amount,
		PaidAt: paidAt,
	}
	if err := tx.Create(&payment).Error; err != nil {
		if database.IsDuplicate(err) {
			return apperr.New(apperr.KindAlreadyPaid, "fine has already been paid")
		}
		return err
	}

	fine.Status = models.StatusCompleted
	return nil
}
