package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultTimezone is the zone used for "today" when resolving reference dates.
const DefaultTimezone = "America/Sao_Paulo"

const brDateLayout = "02/01/2006"

// ParseBRDate parses a DD/MM/YYYY date. Single-digit day and month are accepted.
func ParseBRDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(brDateLayout, s)
	if err != nil {
		t, err = time.Parse("2/1/2006", s)
		if err != nil {
			return civil.Date{}, fmt.Errorf("ParseBRDate: invalid date %q: %w", s, err)
		}
	}
	return civil.DateOf(t), nil
}

// FormatBRDate renders a date as DD/MM/YYYY.
func FormatBRDate(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// FormatBRDayMonth renders a date as DD/MM.
func FormatBRDayMonth(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d", d.Day, int(d.Month))
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(now.In(loc))
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// MonthToDate returns [first day of today's month, today].
func MonthToDate(today civil.Date) DateRange {
	return DateRange{
		From: civil.Date{Year: today.Year, Month: today.Month, Day: 1},
		To:   today,
	}
}

// Ordered returns r with From and To swapped when they are reversed.
func (r DateRange) Ordered() DateRange {
	if r.To.Before(r.From) {
		return DateRange{From: r.To, To: r.From}
	}
	return r
}

// AllTime is the range used when a filter has no date bounds.
var AllTime = DateRange{
	From: civil.Date{Year: 1900, Month: time.January, Day: 1},
	To:   civil.Date{Year: 9999, Month: time.December, Day: 31},
}

// ParseOpenRange parses optional DD/MM/YYYY bounds. A missing bound is left
// open, see AllTime.
func ParseOpenRange(from, to string) (DateRange, error) {
	r := AllTime
	var err error
	if strings.TrimSpace(from) != "" {
		if r.From, err = ParseBRDate(from); err != nil {
			return DateRange{}, err
		}
	}
	if strings.TrimSpace(to) != "" {
		if r.To, err = ParseBRDate(to); err != nil {
			return DateRange{}, err
		}
	}
	return r.Ordered(), nil
}
