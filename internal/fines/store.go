// Package fines owns the fine lifecycle:
//
//	requested --discard--> pending --decide--> requested | canceled
//	requested | pending --pay--> completed
//
// Every transition is a conditional UPDATE on the current status, so two
// callers racing on the same fine can never both win. Completion is only
// reachable through Coordinator.Pay.
package fines

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rammfall-education/api-fine/internal/apperr"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDescriptionLen = 1000

// Store issues fines and moves them between the non-payment states.
type Store struct {
	tx     *database.Transactor
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(tx *database.Transactor, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{tx: tx, logger: logger.Named("fines"), now: time.Now}
}

// IssueRequest is a validated admin request to fine a user.
type IssueRequest struct {
	UserID      uint
	Description string
	Amount      int64
	Deadline    time.Time
}

func (r *IssueRequest) validate() error {
	r.Description = strings.TrimSpace(r.Description)
	switch {
	case r.Amount <= 0:
		return apperr.Field(apperr.KindInvalidInput, "amount", "amount must be positive")
	case r.Description == "":
		return apperr.Field(apperr.KindInvalidInput, "description", "description is required")
	case len(r.Description) > maxDescriptionLen:
		return apperr.Field(apperr.KindInvalidInput, "description", "description is too long")
	case r.Deadline.IsZero():
		return apperr.Field(apperr.KindInvalidInput, "deadline", "deadline is required")
	case r.UserID == 0:
		return apperr.Field(apperr.KindInvalidInput, "userId", "userId is required")
	}
	return nil
}

// Issue creates a fine in the requested state.
func (s *Store) Issue(ctx context.Context, actor models.Actor, req IssueRequest) (*models.Fine, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "only admins can issue fines")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	fine := models.Fine{
		Description: req.Description,
		Amount:      req.Amount,
		Status:      models.StatusRequested,
		AdminID:     actor.ID,
		UserID:      req.UserID,
		IssuedDate:  DateOf(s.now()),
		Deadline:    DateOf(req.Deadline),
	}

	err := s.tx.Do(ctx, "issue fine", func(tx *gorm.DB) error {
		var debtor models.User
		if err := tx.Select("id").Take(&debtor, req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Field(apperr.KindNotFound, "userId", "user does not exist")
			}
			return err
		}
		return tx.Create(&fine).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fine issued",
		zap.Uint("fine_id", fine.ID),
		zap.Uint("admin_id", fine.AdminID),
		zap.Uint("user_id", fine.UserID),
		zap.Int64("amount", fine.Amount),
	)
	return &fine, nil
}

// RequestDiscard lets the debtor dispute a requested fine, moving it to pending.
func (s *Store) RequestDiscard(ctx context.Context, userID, fineID uint) (*models.Fine, error) {
	var fine models.Fine
	err := s.tx.Do(ctx, "request discard", func(tx *gorm.DB) error {
		res := tx.Model(&models.Fine{}).
			Where("id = ? AND user_id = ? AND status = ?", fineID, userID, models.StatusRequested).
			Update("status", models.StatusPending)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindInvalidTransition, "fine does not exist or status is not requested")
		}
		return tx.Take(&fine, fineID).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fine discard requested", zap.Uint("fine_id", fineID), zap.Uint("user_id", userID))
	return &fine, nil
}

// Decide resolves a pending dispute: back to requested, or canceled.
func (s *Store) Decide(ctx context.Context, actor models.Actor, fineID uint, verdict models.FineStatus) (*models.Fine, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "only admins can change fine status")
	}
	if verdict != models.StatusRequested && verdict != models.StatusCanceled {
		return nil, apperr.Field(apperr.KindInvalidInput, "status", "status must be requested or canceled")
	}

	var fine models.Fine
	err := s.tx.Do(ctx, "decide fine", func(tx *gorm.DB) error {
		res := tx.Model(&models.Fine{}).
			Where("id = ? AND status = ?", fineID, models.StatusPending).
			Update("status", verdict)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindInvalidTransition, "fine does not exist or status is not pending")
		}
		return tx.Take(&fine, fineID).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fine decided",
		zap.Uint("fine_id", fineID),
		zap.Uint("admin_id", actor.ID),
		zap.String("status", string(verdict)),
	)
	return &fine, nil
}

// Get returns a fine owned by userID.
func (s *Store) Get(ctx context.Context, userID, fineID uint) (*models.Fine, error) {
	var fine models.Fine
	err := s.tx.DB(ctx).Where("id = ? AND user_id = ?", fineID, userID).Take(&fine).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "fine does not exist")
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "get fine")
	}
	return &fine, nil
}

// List returns the user's own fines matching f.
func (s *Store) List(ctx context.Context, userID uint, f Filter) ([]models.Fine, error) {
	q, err := f.apply(s.tx.DB(ctx).Model(&models.Fine{}), s.now(), true)
	if err != nil {
		return nil, err
	}
	list, err := find(q.Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}
	return f.keep(list), nil
}

// ListAll returns every fine matching f. Admins only. Deadlines are bounded
// only by the dates given in f.
func (s *Store) ListAll(ctx context.Context, actor models.Actor, f Filter) ([]models.Fine, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "this user is not admin")
	}
	q, err := f.apply(s.tx.DB(ctx).Model(&models.Fine{}), s.now(), false)
	if err != nil {
		return nil, err
	}
	list, err := find(q)
	if err != nil {
		return nil, err
	}
	return f.keep(list), nil
}

func find(q *gorm.DB) ([]models.Fine, error) {
	fines := make([]models.Fine, 0)
	if err := q.Order("deadline ASC, id ASC").Find(&fines).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list fines")
	}
	return fines, nil
}

// DateOf drops the clock part of t, keeping its calendar date, in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
