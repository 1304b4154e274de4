package shared

import (
	"fmt"
	"time"
)

// Supported year range for dues periods.
const (
	MinPeriodYear = 2000
	MaxPeriodYear = 2100
)

// Period identifies one calendar month. Months are 1-indexed (January = 1).
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Validate checks month and year bounds.
func (p Period) Validate() error {
	fields := map[string]string{}
	if p.Month < 1 || p.Month > 12 {
		fields["month"] = "must be between 1 and 12"
	}
	if p.Year < MinPeriodYear || p.Year > MaxPeriodYear {
		fields["year"] = fmt.Sprintf("must be between %d and %d", MinPeriodYear, MaxPeriodYear)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Before orders periods by year then month.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// AddMonths shifts the period by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	idx := p.Year*12 + (p.Month - 1) + n
	return Period{Year: idx / 12, Month: idx%12 + 1}
}

// Key renders the period as YYYY-MM.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, NewValidationError("period", "must use YYYY-MM format")
	}
	return PeriodOf(t), nil
}
