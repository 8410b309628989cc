package relay

import (
	"strings"
	"testing"

	"github.com/dynamo-ai/engine-relay/internal/domain"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "budget exceeded",
			status:      402,
			body:        `{"error":{"code":"budget_exceeded","message":"Monthly limit reached"}}`,
			wantCode:    domain.CodeBudgetExceeded,
			wantContain: []string{"**Budget Exceeded**", "Monthly limit reached", "budget increase"},
			wantAbsent:  []string{"sensitive", "sign in"},
		},
		{
			name:        "sensitive data blocked",
			status:      400,
			body:        `{"error":{"code":"sensitive_data_blocked","message":"Prompt contains an API key"}}`,
			wantCode:    domain.CodeSensitiveDataBlocked,
			wantContain: []string{"**Request Blocked**", "Prompt contains an API key", "sensitive information"},
			wantAbsent:  []string{"Budget", "sign in"},
		},
		{
			name:        "invalid api key",
			status:      401,
			body:        `{"error":{"code":"invalid_api_key","message":"Key revoked"}}`,
			wantCode:    domain.CodeInvalidAPIKey,
			wantContain: []string{"**Authentication Error**", "Key revoked", "sign in again"},
			wantAbsent:  []string{"Budget", "sensitive"},
		},
		{
			name:        "auth required",
			status:      401,
			body:        `{"error":{"code":"auth_required","message":"Session expired"}}`,
			wantCode:    domain.CodeAuthRequired,
			wantContain: []string{"**Authentication Error**", "Session expired"},
		},
		{
			name:        "unknown code gets generic template",
			status:      500,
			body:        `{"error":{"code":"engine_overloaded","message":"Try again later"}}`,
			wantCode:    "engine_overloaded",
			wantContain: []string{"**Error** (engine_overloaded): Try again later"},
		},
		{
			name:        "message without code",
			status:      500,
			body:        `{"error":{"message":"Something broke"}}`,
			wantCode:    "unknown",
			wantContain: []string{"**Error** (unknown): Something broke"},
		},
		{
			name:        "unparseable body falls back to status",
			status:      502,
			body:        `<html>Bad Gateway</html>`,
			wantCode:    "unknown",
			wantContain: []string{"returned status 502"},
		},
		{
			name:        "empty error object falls back to status",
			status:      503,
			body:        `{"error":{}}`,
			wantCode:    "unknown",
			wantContain: []string{"returned status 503"},
		},
		{
			name:        "empty body falls back to status",
			status:      500,
			body:        ``,
			wantCode:    "unknown",
			wantContain: []string{"returned status 500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, code := classifyError(tt.status, []byte(tt.body))

			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(msg, want) {
					t.Errorf("message should contain %q, got %q", want, msg)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(msg, absent) {
					t.Errorf("message should not contain %q, got %q", absent, msg)
				}
			}
		})
	}
}

func TestTransportMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", domain.ErrEngineTimeout, "**Timeout**"},
		{"unreachable", domain.ErrEngineUnreachable, "**Connection Error**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := transportMessage(tt.err)
			if !strings.HasPrefix(msg, tt.want) {
				t.Errorf("transportMessage(%v) = %q, want prefix %q", tt.err, msg, tt.want)
			}
		})
	}

	// Anything else gets the generic unexpected-error message.
	msg := transportMessage(errFake)
	if !strings.Contains(msg, "unexpected error") || !strings.Contains(msg, "fake failure") {
		t.Errorf("generic message = %q", msg)
	}
}

var errFake = errFakeType{}

type errFakeType struct{}

func (errFakeType) Error() string { return "fake failure" }
