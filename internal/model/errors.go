package model

import "fmt"

// ErrorKind classifies an Error
type ErrorKind uint8

const (
	ErrorKindNetwork ErrorKind = iota
	ErrorKindDecode
	ErrorKindFunctionCompile
	ErrorKindFunctionEval
	ErrorKindConfig
	ErrorKindInvariant
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNetwork:
		return "network"
	case ErrorKindDecode:
		return "decode"
	case ErrorKindFunctionCompile:
		return "function_compile"
	case ErrorKindFunctionEval:
		return "function_eval"
	case ErrorKindConfig:
		return "config"
	case ErrorKindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error wraps a Cause with the tile it occurred on and its ErrorKind, so
// callers up the stack (tile manager, logging) can branch on Kind without
// string matching.
type Error struct {
	Kind  ErrorKind
	Tile  TileID
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Tile)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Tile, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error.
func NewError(kind ErrorKind, tile TileID, cause error) *Error {
	return &Error{Kind: kind, Tile: tile, Cause: cause}
}
