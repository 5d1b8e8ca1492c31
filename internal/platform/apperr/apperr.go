// Package apperr defines the error taxonomy shared by the domain services
// and its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ValidationError lists every violated rule of one mutation.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

type PermissionError struct {
	Msg string
}

func (e *PermissionError) Error() string {
	if e.Msg == "" {
		return "permission denied"
	}
	return e.Msg
}

// LockedRecordError rejects a mutation inside a complete event.
type LockedRecordError struct {
	Msg string
}

func (e *LockedRecordError) Error() string { return e.Msg }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

type ConflictError struct {
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, current %d", e.Expected, e.Actual)
}

// Validation returns nil when msgs is empty.
func Validation(msgs ...string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

func Permission(format string, args ...interface{}) error {
	return &PermissionError{Msg: fmt.Sprintf(format, args...)}
}

func Locked(msg string) error {
	return &LockedRecordError{Msg: msg}
}

func NotFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func Conflict(expected, actual int) error {
	return &ConflictError{Expected: expected, Actual: actual}
}

// Messages collects validation failures so all of them are reported at once.
type Messages []string

func (m *Messages) Add(msg string) {
	for _, existing := range *m {
		if existing == msg {
			return
		}
	}
	*m = append(*m, msg)
}

func (m *Messages) AddIf(cond bool, msg string) {
	if cond {
		m.Add(msg)
	}
}

// Merge folds a ValidationError into m and returns any other error as is.
func (m *Messages) Merge(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		for _, msg := range ve.Messages {
			m.Add(msg)
		}
		return nil
	}
	return err
}

func (m Messages) Err() error {
	return Validation(m...)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ToHTTP maps a service error onto an echo HTTP error. Errors outside the
// taxonomy become a 500 with a generic message.
func ToHTTP(err error) error {
	if err == nil {
		return nil
	}
	var (
		he *echo.HTTPError
		ve *ValidationError
		pe *PermissionError
		le *LockedRecordError
		ne *NotFoundError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{"errors": ve.Messages})
	case errors.As(err, &pe):
		return echo.NewHTTPError(http.StatusForbidden, pe.Error())
	case errors.As(err, &le):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{"errors": []string{le.Msg}})
	case errors.As(err, &ne):
		return echo.NewHTTPError(http.StatusNotFound, ne.Error())
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, ce.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
