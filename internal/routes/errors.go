package routes

import (
	"errors"
	"net/http"

	"gitlab.com/ranfdev/notifyd/internal/models"
	"gitlab.com/ranfdev/notifyd/internal/notifications"
)

// AppError is an error that knows how it should be shown to the client.
type AppError interface {
	error
	Status() int
	Message() string
}

type ErrInternal struct {
	Msg string
	Err error
}

func (e *ErrInternal) Error() string   { return errString(e.Err, "Internal server error") }
func (e *ErrInternal) Unwrap() error   { return e.Err }
func (e *ErrInternal) Status() int     { return http.StatusInternalServerError }
func (e *ErrInternal) Message() string { return orDefault(e.Msg, "Internal server error") }

type ErrBadRequest struct {
	Msg string
	Err error
}

func (e *ErrBadRequest) Error() string   { return errString(e.Err, "Bad request") }
func (e *ErrBadRequest) Unwrap() error   { return e.Err }
func (e *ErrBadRequest) Status() int     { return http.StatusBadRequest }
func (e *ErrBadRequest) Message() string { return orDefault(e.Msg, e.Error()) }

type ErrUnauthorized struct {
	Err error
}

func (e *ErrUnauthorized) Error() string   { return errString(e.Err, "Unauthorized") }
func (e *ErrUnauthorized) Unwrap() error   { return e.Err }
func (e *ErrUnauthorized) Status() int     { return http.StatusUnauthorized }
func (e *ErrUnauthorized) Message() string { return "Missing or invalid user identity" }

type ErrForbidden struct {
	Err error
}

func (e *ErrForbidden) Error() string   { return errString(e.Err, "Forbidden") }
func (e *ErrForbidden) Unwrap() error   { return e.Err }
func (e *ErrForbidden) Status() int     { return http.StatusForbidden }
func (e *ErrForbidden) Message() string { return e.Error() }

type ErrNotFound struct {
	Err error
}

func (e *ErrNotFound) Error() string   { return errString(e.Err, "Not found") }
func (e *ErrNotFound) Unwrap() error   { return e.Err }
func (e *ErrNotFound) Status() int     { return http.StatusNotFound }
func (e *ErrNotFound) Message() string { return "Notification not found" }

func errString(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// toAppError maps service errors onto HTTP statuses.
func toAppError(err error) AppError {
	var appErr AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, notifications.ErrNotFound):
		return &ErrNotFound{Err: err}
	case errors.Is(err, models.ErrPermDenied):
		return &ErrForbidden{Err: err}
	case errors.Is(err, notifications.ErrInvalidNotification):
		return &ErrBadRequest{Err: err}
	}
	return &ErrInternal{Err: err}
}
