package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfAndHTTPStatus(t *testing.T) {
	type testCase struct {
		name       string
		err        error
		expectCode Code
		expectHTTP int
	}

	tests := []testCase{
		{name: "not found", err: NotFound("purchase_order", "x"), expectCode: ErrCodeNotFound, expectHTTP: http.StatusNotFound},
		{name: "invalid input", err: InvalidInput("amount_total", "bad"), expectCode: ErrCodeInvalidInput, expectHTTP: http.StatusBadRequest},
		{name: "conflict", err: New(ErrCodeConflict, "state"), expectCode: ErrCodeConflict, expectHTTP: http.StatusConflict},
		{name: "unauthorized", err: New(ErrCodeUnauthorized, "who"), expectCode: ErrCodeUnauthorized, expectHTTP: http.StatusUnauthorized},
		{name: "forbidden", err: Forbidden("no", nil), expectCode: ErrCodeForbidden, expectHTTP: http.StatusForbidden},
		{name: "wrapped by fmt", err: fmt.Errorf("outer: %w", NotFound("approval_config", "y")), expectCode: ErrCodeNotFound, expectHTTP: http.StatusNotFound},
		{name: "plain error", err: stderrors.New("boom"), expectCode: ErrCodeInternal, expectHTTP: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectCode, CodeOf(tc.err))
			assert.Equal(t, tc.expectHTTP, HTTPStatus(tc.err))
		})
	}
}

func TestAppError(t *testing.T) {
	cause := New(ErrCodeForbidden, "not an approver")
	err := Forbidden("level 1 denied", cause)

	assert.True(t, Is(err, cause))
	assert.Equal(t, "level 1 denied: not an approver", err.Error())

	field := InvalidInput("currency", "must be 3 letters")
	assert.Equal(t, "currency: must be 3 letters", field.Error())

	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))

	var appErr *AppError
	assert.True(t, As(Wrap(stderrors.New("io"), ErrCodeInternal, "db"), &appErr))
	assert.Equal(t, ErrCodeInternal, appErr.Code)
}
