package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidTimezone,
		Message: "unknown IANA timezone",
	}

	expected := "validation_invalid_timezone: unknown IANA timezone"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to list due reminder jobs", underlying)

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should reach the underlying error")
	}
}

func TestAppErrorUnwrapNil(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundReminderJob, "reminder job not found", nil)

	if appErr.Unwrap() != nil {
		t.Errorf("Unwrap() should return nil when Err is nil, got %v", appErr.Unwrap())
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeAuthSecretInvalid, "cron secret mismatch", nil)
	wrapped := fmt.Errorf("trigger rejected: %w", appErr)

	var got *AppError
	if !errors.As(wrapped, &got) {
		t.Fatal("errors.As failed to extract AppError from the chain")
	}
	if got.Code != ErrCodeAuthSecretInvalid {
		t.Errorf("extracted code = %q, want %q", got.Code, ErrCodeAuthSecretInvalid)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidTimezone, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidTask, http.StatusBadRequest},
		{ErrCodeAuthSecretMissing, http.StatusUnauthorized},
		{ErrCodeAuthSecretInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundUser, http.StatusNotFound},
		{ErrCodeNotFoundReminderJob, http.StatusNotFound},
		{ErrCodeUpstreamChat, http.StatusBadGateway},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_unrecognized"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestAppErrorHTTPStatusDelegates(t *testing.T) {
	appErr := NewAppError(ErrCodeUpstreamQueue, "sqs send failed", nil)

	if appErr.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("HTTPStatus() = %d, want %d", appErr.HTTPStatus(), http.StatusBadGateway)
	}
}
