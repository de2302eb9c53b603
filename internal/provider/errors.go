package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a provider error so callers can branch without parsing strings,
// mirroring the ProviderNetwork/ProviderPruned/ProviderParse taxonomy in
// spec.md §7 and original_source/indexer/src/infrastructure/bitcoin/error.rs.
type Kind int

const (
	KindNetwork Kind = iota
	KindParse
	KindRPC
	KindPruned
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindRPC:
		return "rpc"
	case KindPruned:
		return "pruned"
	default:
		return "unknown"
	}
}

// Error is the tagged error type returned by Provider implementations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPruned reports whether err (or any error it wraps) is a pruned-data error.
func IsPruned(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindPruned
	}
	return false
}

// prunedSubstrings are the message fragments spec.md §4.1 defines as the
// recognizable signature of a pruned-data error from either provider variant.
var prunedSubstrings = []string{"Block not available", "pruned"}

// classify wraps a raw driver error with the right Kind, applying the
// substring-based pruned-data detection spec.md requires (the driver does not
// expose a typed "pruned" error, only a message).
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, frag := range prunedSubstrings {
		if strings.Contains(msg, frag) {
			return &Error{Kind: KindPruned, Op: op, Err: err}
		}
	}
	if isNetworkError(err) {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	return &Error{Kind: KindRPC, Op: op, Err: err}
}

func isNetworkError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"connection refused", "timeout", "no such host", "eof", "broken pipe", "i/o timeout"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
