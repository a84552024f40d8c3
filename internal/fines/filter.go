package fines

import (
	"strings"
	"time"

	"github.com/rammfall-education/api-fine/internal/apperr"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/models"

	"gorm.io/gorm"
)

// defaultHorizon is how far past today the default dateTo reaches.
const defaultHorizon = 3 // years

// Filter narrows a fine listing. Zero values mean "no restriction".
// Deadlines must fall strictly between DateFrom and DateTo.
type Filter struct {
	DateFrom    *time.Time
	DateTo      *time.Time
	Statuses    []models.FineStatus
	Description string
}

// bounds returns the exclusive deadline window. Without an explicit DateTo the
// user view stops defaultHorizon years past today; the admin view is open.
func (f Filter) bounds(now time.Time, horizon bool) (from, to *time.Time) {
	if f.DateFrom != nil {
		d := DateOf(*f.DateFrom)
		from = &d
	}
	switch {
	case f.DateTo != nil:
		d := DateOf(*f.DateTo)
		to = &d
	case horizon:
		d := DateOf(now).AddDate(defaultHorizon, 0, 0)
		to = &d
	}
	return from, to
}

func (f Filter) statuses() ([]models.FineStatus, error) {
	if len(f.Statuses) == 0 {
		return models.AllStatuses, nil
	}
	for _, s := range f.Statuses {
		if !s.Valid() {
			return nil, apperr.Field(apperr.KindInvalidInput, "statuses", "unknown status "+string(s))
		}
	}
	return f.Statuses, nil
}

func (f Filter) apply(q *gorm.DB, now time.Time, horizon bool) (*gorm.DB, error) {
	statuses, err := f.statuses()
	if err != nil {
		return nil, err
	}
	q = q.Where("status IN ?", statuses)

	from, to := f.bounds(now, horizon)
	if from != nil {
		q = q.Where("deadline > ?", *from)
	}
	if to != nil {
		q = q.Where("deadline < ?", *to)
	}

	if needle := f.needle(); needle != "" && database.IsPostgres(q) {
		q = q.Where(`LOWER(description) LIKE ? ESCAPE '\'`, "%"+database.EscapeLike(needle)+"%")
	}
	return q, nil
}

func (f Filter) needle() string {
	return strings.ToLower(strings.TrimSpace(f.Description))
}

// keep drops fines whose description does not contain the needle.
// SQLite's LOWER folds ASCII only, so the match is repeated here.
func (f Filter) keep(list []models.Fine) []models.Fine {
	needle := f.needle()
	if needle == "" {
		return list
	}
	out := list[:0]
	for _, fine := range list {
		if strings.Contains(strings.ToLower(fine.Description), needle) {
			out = append(out, fine)
		}
	}
	return out
}
