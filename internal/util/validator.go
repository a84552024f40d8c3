package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rammfall-education/api-fine/internal/apperr"
)

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date. field names the request field in the
// returned error.
func ParseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Field(apperr.KindInvalidInput, field, "date is empty")
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Field(apperr.KindInvalidInput, field, "date must be YYYY-MM-DD")
	}
	return d, nil
}

// ParseOptionalDate is ParseDate that treats an empty value as absent.
func ParseOptionalDate(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseID parses a positive numeric path id.
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Field(apperr.KindInvalidInput, "id", fmt.Sprintf("invalid id %q", s))
	}
	return uint(id), nil
}

// SplitList flattens repeated and comma separated query values, dropping blanks.
// "statuses=a,b&statuses=c" yields [a b c].
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
