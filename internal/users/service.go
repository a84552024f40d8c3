// Package users manages accounts: registration, credentials and the admin
// directory. A new account always gets its zero balance in the same
// transaction that creates it.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rammfall-education/api-fine/internal/apperr"
	"github.com/rammfall-education/api-fine/internal/config"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/ledger"
	"github.com/rammfall-education/api-fine/internal/models"
	"github.com/rammfall-education/api-fine/internal/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	tx         *database.Transactor
	bcryptCost int
	logger     *zap.Logger
}

func NewService(tx *database.Transactor, bcryptCost int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tx: tx, bcryptCost: bcryptCost, logger: logger.Named("users")}
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

func (r *RegisterRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = normalizeEmail(r.Email)
	if err := checkLen("name", r.Name, 4, 40); err != nil {
		return err
	}
	if err := checkEmail(r.Email, 50); err != nil {
		return err
	}
	return checkPassword("password", r.Password)
}

// Register creates a user with role user and an empty balance.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.create(ctx, "register user", &user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	return &user, nil
}

func (s *Service) create(ctx context.Context, op string, user *models.User) error {
	return s.tx.Do(ctx, op, func(tx *gorm.DB) error {
		taken, err := emailTaken(tx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return errEmailTaken()
		}
		if err := tx.Create(user).Error; err != nil {
			if database.IsDuplicate(err) {
				return errEmailTaken()
			}
			return err
		}
		return ledger.OpenTx(tx, user.ID)
	})
}

// Authenticate checks the credentials and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.tx.DB(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Field(apperr.KindInvalidInput, "email", "user with this email does not exist")
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "find user")
	}
	if !util.CheckPassword(password, user.PasswordHash) {
		return nil, apperr.Field(apperr.KindForbidden, "password", "your password is incorrect")
	}
	return &user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.tx.DB(ctx).Take(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user does not exist")
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "get user")
	}
	return &user, nil
}

// ChangeEmail moves the account to a new, unused email.
func (s *Service) ChangeEmail(ctx context.Context, userID uint, email string) (string, error) {
	email = normalizeEmail(email)
	if err := checkEmail(email, 40); err != nil {
		return "", err
	}

	err := s.tx.Do(ctx, "change email", func(tx *gorm.DB) error {
		taken, err := emailTaken(tx, email)
		if err != nil {
			return err
		}
		if taken {
			return errEmailTaken()
		}
		res := tx.Model(&models.User{}).Where("id = ?", userID).Update("email", email)
		if res.Error != nil {
			if database.IsDuplicate(res.Error) {
				return errEmailTaken()
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindNotFound, "user does not exist")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("email changed", zap.Uint("user_id", userID))
	return email, nil
}

// ChangePassword replaces the password after checking the old one. Reusing the
// current password is rejected with KindUnchanged.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	if err := checkPassword("password", newPassword); err != nil {
		return err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !util.CheckPassword(oldPassword, user.PasswordHash) {
		return apperr.Field(apperr.KindInvalidInput, "oldPassword", "old password is incorrect")
	}
	if util.CheckPassword(newPassword, user.PasswordHash) {
		return apperr.Field(apperr.KindUnchanged, "password", "new password matches the old one")
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	// the hash we checked against must still be current
	err = s.tx.Do(ctx, "change password", func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND password_hash = ?", userID, user.PasswordHash).
			Update("password_hash", hash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindConflict, "password changed concurrently")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password changed", zap.Uint("user_id", userID))
	return nil
}

// List returns the non-admin users whose name contains search, ignoring case.
func (s *Service) List(ctx context.Context, actor models.Actor, search string) ([]models.User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "you dont have correct rights")
	}

	search = strings.ToLower(strings.TrimSpace(search))
	q := s.tx.DB(ctx).Where("role = ?", models.RoleUser)
	if search != "" && database.IsPostgres(q) {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+database.EscapeLike(search)+"%")
	}

	users := make([]models.User, 0)
	if err := q.Order("id ASC").Find(&users).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list users")
	}
	if search == "" {
		return users, nil
	}
	// SQLite folds ASCII only; match names here
	out := users[:0]
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), search) {
			out = append(out, u)
		}
	}
	return out, nil
}

// SeedAdmin makes sure the configured administrator exists. It reports whether
// an account was created. Without a password nothing is seeded.
func (s *Service) SeedAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	email := normalizeEmail(cfg.Email)
	if email == "" || cfg.Password == "" {
		s.logger.Warn("admin seed skipped: email or password not configured")
		return false, nil
	}

	taken, err := emailTaken(s.tx.DB(ctx), email)
	if err != nil {
		return false, err
	}
	if taken {
		return false, nil
	}

	hash, err := s.hash(cfg.Password)
	if err != nil {
		return false, err
	}
	admin := models.User{
		Name:         strings.TrimSpace(cfg.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if admin.Name == "" {
		admin.Name = "admin"
	}
	if err := s.create(ctx, "seed admin", &admin); err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			// lost a race with another instance
			return false, nil
		}
		return false, err
	}

	s.logger.Info("admin seeded", zap.Uint("user_id", admin.ID), zap.String("email", admin.Email))
	return true, nil
}

func (s *Service) hash(password string) (string, error) {
	h, err := util.HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "hash password")
	}
	return h, nil
}

func emailTaken(db *gorm.DB, email string) (bool, error) {
	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func errEmailTaken() error {
	return apperr.Field(apperr.KindInvalidInput, "email", "user with this email already exists")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkLen(field, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min || n > max {
		return apperr.Field(apperr.KindInvalidInput, field, fmt.Sprintf("must be between %d and %d characters", min, max))
	}
	return nil
}

func checkEmail(email string, max int) error {
	if err := checkLen("email", email, 6, max); err != nil {
		return err
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return apperr.Field(apperr.KindInvalidInput, "email", "email is malformed")
	}
	return nil
}

func checkPassword(field, password string) error {
	if err := checkLen(field, password, 8, 50); err != nil {
		return err
	}
	if len(password) > 72 {
		return apperr.Field(apperr.KindInvalidInput, field, util.ErrPasswordTooLong.Error())
	}
	return nil
}
