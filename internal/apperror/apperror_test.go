package apperror

import (
	"errors"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("snipe", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "New wraps the given sentinel",
			err:       New(ErrInsufficientFunds, "need %d points, have %d", 300, 100),
			target:    ErrInsufficientFunds,
			wantMatch: true,
		},
		{
			name:      "domain sentinels stay distinct",
			err:       New(ErrAlreadyResolved, "snipe is already resolved"),
			target:    ErrWindowExpired,
			wantMatch: false,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("snipe", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("group", "abc123"),
			wantMessage: "group not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name:        "New formats its message",
			err:         New(ErrInsufficientFunds, "need %d points, have %d", 300, 100),
			wantMessage: "need 300 points, have 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	// Unwrap() returning the sentinel is what makes errors.Is() work.
	err := New(ErrPowerupAlreadyActive, "a double_points powerup is already active")
	if err.Unwrap() != ErrPowerupAlreadyActive {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrPowerupAlreadyActive)
	}
}

func TestValidationFailedField(t *testing.T) {
	// The Field lets handlers tell the frontend WHICH field was invalid.
	err := ValidationFailed("inviteCode", "invite code is required")
	if err.Field != "inviteCode" {
		t.Errorf("Field = %q, want %q", err.Field, "inviteCode")
	}
}
