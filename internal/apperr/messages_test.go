package apperr

import (
	"errors"
	"fmt"
	"testing"
)

type codedErr struct{}

func (codedErr) Error() string { return "timeout while parsing" }

func (codedErr) UserMessage() UserMessage {
	return UserMessage{Message: "custom", Action: "do it", Code: "X001"}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "not found maps correctly",
			err:         errors.New("get abc: record not found"),
			wantCode:    "STORE001",
			wantMessage: "The record no longer exists",
		},
		{
			name:        "dynamo conditional check maps to duplicate",
			err:         errors.New("operation error DynamoDB: PutItem, ConditionalCheckFailedException"),
			wantCode:    "STORE002",
			wantMessage: "A record with this ID already exists",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "STORE003",
			wantMessage: "Unable to reach the document store",
		},
		{
			name:        "deadline keeps import code",
			err:         errors.New("context deadline exceeded (timeout)"),
			wantCode:    "IMP006",
			wantMessage: "Request timed out",
		},
		{
			name:        "plain timeout maps to store",
			err:         errors.New("i/o timeout"),
			wantCode:    "STORE006",
			wantMessage: "Operation timed out",
		},
		{
			name:        "unsupported media type uses archive wording",
			err:         errors.New("unsupported media type \"image/png\""),
			wantCode:    "FILE002",
			wantMessage: "Faqatgina Excel fayllarini yuklash mumkin",
		},
		{
			name:        "empty sheet",
			err:         errors.New("no data rows"),
			wantCode:    "FILE004",
			wantMessage: "Faylda ma'lumotlar mavjud emas",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("IMPORT ALREADY RUNNING"),
			wantCode:    "IMP002",
			wantMessage: "Another import is still running",
		},
		{
			name:        "coded error wins over patterns",
			err:         fmt.Errorf("wrapped: %w", codedErr{}),
			wantCode:    "X001",
			wantMessage: "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := errors.New("record not found")
	result := FormatUserError(err)

	expected := "The record no longer exists (Code: STORE001). Refresh the list and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("import cancelled"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("update abc: record not found")
		userErr := NewUserError(techErr)

		if userErr.Error() != "The record no longer exists" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}
