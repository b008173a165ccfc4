package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/user/catalog-service/internal/entity"
)

// softSignatures are message fragments of expected, non-systemic failures.
var softSignatures = []string{
	"could not fetch",
	"no product",
	"not a product",
}

// transientSignatures are message fragments of network failures that are
// plausibly recoverable. Collaborators that return *entity.FetchError with a
// Kind bypass this list.
var transientSignatures = []string{
	"econnreset",
	"etimedout",
	"timeout",
	"timed out",
	"enotfound",
	"eai_again",
	"no such host",
	"connection reset",
	"connection refused",
	"socket hang up",
	"aborted",
	"tls handshake",
	"eof",
	"deadline exceeded",
}

// ClassifyError maps an item failure to its error kind. Typed errors win over
// message matching.
func ClassifyError(err error) entity.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, entity.ErrFatal) {
		return entity.KindFatal
	}
	var fe *entity.FetchError
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.KindTransient
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range softSignatures {
		if strings.Contains(msg, sig) {
			return entity.KindSoft
		}
	}
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return entity.KindTransient
		}
	}
	return entity.KindSystemic
}

// countsTowardBreaker reports whether a failure kind moves the circuit breaker.
func countsTowardBreaker(kind entity.ErrorKind) bool {
	return kind == entity.KindTransient || kind == entity.KindSystemic
}
