// Package notify delivers accepted submissions to the spreadsheet, email, Slack
// and browser push.
package notify

import (
	"errors"
	"net/http"
)

// ErrNotConfigured is returned by a notifier whose credentials are missing.
var ErrNotConfigured = errors.New("notifier not configured")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// classifyStatus turns a non-2xx status into an error; 4xx other than 408 and
// 429 are permanent.
func classifyStatus(code int, err error) error {
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}
