package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dynamo-ai/engine-relay/internal/domain"
)

const (
	msgConnection = "**Connection Error**: Unable to reach the Claude Engine service. " +
		"Please try again in a moment or contact your administrator."
	msgTimeout = "**Timeout**: The request took too long to complete. " +
		"Try a shorter prompt or contact your administrator."
	msgUnexpected = "**Error**: An unexpected error occurred: %v"
)

// transportMessage renders a transport fault as the fixed user-facing
// message for its class. Connection failures and timeouts read differently
// so users know whether to retry or shorten their prompt.
func transportMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEngineTimeout):
		return msgTimeout
	case errors.Is(err, domain.ErrEngineUnreachable):
		return msgConnection
	default:
		return fmt.Sprintf(msgUnexpected, err)
	}
}

// classifyError maps a non-200 engine response to a user-facing message and
// the engine error code it matched. It is a pure function of its inputs and
// never fails: an unparseable or shapeless body falls back to a generic
// message carrying the HTTP status.
func classifyError(status int, body []byte) (msg, code string) {
	var env domain.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || (env.Error.Code == "" && env.Error.Message == "") {
		return fmt.Sprintf(
			"**Error**: Claude Engine returned status %d. Please try again or contact your administrator.",
			status,
		), "unknown"
	}

	code = env.Error.Code
	if code == "" {
		code = "unknown"
	}
	message := env.Error.Message
	if message == "" {
		message = "An error occurred"
	}

	switch code {
	case domain.CodeBudgetExceeded:
		return fmt.Sprintf(
			"**Budget Exceeded**\n\n%s\n\n"+
				"Contact your administrator to request a budget increase, "+
				"or wait until your budget resets at the start of next month.",
			message,
		), code
	case domain.CodeSensitiveDataBlocked:
		return fmt.Sprintf(
			"**Request Blocked**\n\n%s\n\n"+
				"Please remove any sensitive information "+
				"(API keys, credentials, SSNs, etc.) from your prompt and try again.",
			message,
		), code
	case domain.CodeInvalidAPIKey, domain.CodeAuthRequired:
		return fmt.Sprintf(
			"**Authentication Error**\n\n%s\n\n"+
				"Please sign in again or contact your administrator.",
			message,
		), code
	default:
		return fmt.Sprintf("**Error** (%s): %s", code, message), code
	}
}
