package orderform

import (
	"fmt"
	"strings"
	"time"
)

const dobLayout = "2006-01-02"

var dobLayouts = []string{dobLayout, "01/02/2006", "1/2/2006"}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatSSN renders XXX-XX-XXXX, left-padding short input with zeros.
// More than nine digits is returned unchanged.
func FormatSSN(ssn string) string {
	d := digits(ssn)
	if len(d) > 9 {
		return ssn
	}
	d = strings.Repeat("0", 9-len(d)) + d
	return d[:3] + "-" + d[3:5] + "-" + d[5:]
}

// NormalizePhone returns the ten national digits, dropping a leading country code 1.
func NormalizePhone(phone string) (string, bool) {
	d := digits(phone)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d, len(d) == 10
}

func FormatPhone(phone string) string {
	d, ok := NormalizePhone(phone)
	if !ok {
		return phone
	}
	return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:])
}

func ParseDateOfBirth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FormatDateOfBirth renders MM/DD/YYYY; unparseable input is returned as is.
func FormatDateOfBirth(s string) string {
	t, err := ParseDateOfBirth(s)
	if err != nil {
		return s
	}
	return t.Format("01/02/2006")
}

// Age in whole years on the calendar date of now.
func Age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
