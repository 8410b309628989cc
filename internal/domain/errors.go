package domain

import "errors"

var (
	ErrEngineUnreachable = errors.New("claude engine unreachable")
	ErrEngineTimeout     = errors.New("claude engine timed out")
)
