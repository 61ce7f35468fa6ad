package errors

import (
	"errors"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CodePairingSessionNotFound, "session not found"),
			expected: "pairing.session_not_found: session not found",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodeDeliveryFailed, "send failed", errors.New("buffer full")),
			expected: "delivery.failed: send failed (buffer full)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}

	// Test without cause
	err2 := New(CodeRegistryNotFound, "not found")
	if err2.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "CodedError",
			err:      New(CodeRegistryNotFound, "not found"),
			expected: CodeRegistryNotFound,
		},
		{
			name:     "wrapped CodedError",
			err:      Wrap(CodeDeliveryFailed, "failed", errors.New("cause")),
			expected: CodeDeliveryFailed,
		},
		{
			name:     "plain error",
			err:      errors.New("some error"),
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "CodedError",
			err:      New(CodePairingSessionNotFound, "session not found"),
			expected: "session not found",
		},
		{
			name:     "plain error",
			err:      errors.New("some error"),
			expected: "some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessage(tt.err); got != tt.expected {
				t.Errorf("GetMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestToCodeAndMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "CodedError",
			err:         New(CodePairingSessionNotFound, "session not found"),
			wantCode:    CodePairingSessionNotFound,
			wantMessage: "session not found",
		},
		{
			name:        "plain error",
			err:         errors.New("some error"),
			wantCode:    CodeUnknown,
			wantMessage: "some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ToCodeAndMessage(tt.err)
			if code != tt.wantCode {
				t.Errorf("ToCodeAndMessage() code = %q, want %q", code, tt.wantCode)
			}
			if message != tt.wantMessage {
				t.Errorf("ToCodeAndMessage() message = %q, want %q", message, tt.wantMessage)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodePairingSessionNotFound, "not found")

	if !IsCode(err, CodePairingSessionNotFound) {
		t.Error("IsCode() should return true for matching code")
	}

	if IsCode(err, CodeDeliveryFailed) {
		t.Error("IsCode() should return false for non-matching code")
	}

	if IsCode(nil, CodePairingSessionNotFound) {
		t.Error("IsCode() should return false for nil error")
	}
}


func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name        string
		err         *CodedError
		wantCode    string
		wantMessage string
	}{
		{
			name:        "MissingField",
			err:         MissingField("Video URL is required"),
			wantCode:    CodeValidationMissingField,
			wantMessage: "Video URL is required",
		},
		{
			name:        "InvalidKind",
			err:         InvalidKind(),
			wantCode:    CodeValidationInvalidKind,
			wantMessage: "Invalid registration type. Use 'tv', 'mobile' or 'emulator'",
		},
		{
			name:        "TVNotFound",
			err:         TVNotFound(nil),
			wantCode:    CodeRegistryNotFound,
			wantMessage: "TV not found or not registered",
		},
		{
			name:        "SessionNotFound",
			err:         SessionNotFound(nil),
			wantCode:    CodePairingSessionNotFound,
			wantMessage: "Pairing session not found or expired",
		},
		{
			name:        "AlreadyUsed",
			err:         AlreadyUsed(nil),
			wantCode:    CodePairingAlreadyUsed,
			wantMessage: "Pairing session already used",
		},
		{
			name:        "TargetNotFound",
			err:         TargetNotFound("emu-2"),
			wantCode:    CodeDeliveryTargetNotFound,
			wantMessage: "Target emu-2 not found or not connected",
		},
		{
			name:        "DeliveryFailed",
			err:         DeliveryFailed("emu-2"),
			wantCode:    CodeDeliveryFailed,
			wantMessage: "Target emu-2 is not available",
		},
		{
			name:        "UnknownEvent",
			err:         UnknownEvent("fly"),
			wantCode:    CodeServerUnknownEvent,
			wantMessage: "unknown event: fly",
		},
		{
			name:        "RateLimited",
			err:         RateLimited(),
			wantCode:    CodeInputRateLimited,
			wantMessage: "too many events, slow down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMessage)
			}
		})
	}
}

func TestSessionNotFound_PreservesCause(t *testing.T) {
	sentinel := errors.New("session not found")
	err := SessionNotFound(sentinel)
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped sentinel")
	}
}
