package fault

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classify wraps err into the taxonomy if it is not already classified.
// Already-classified errors and caller cancellation pass through
// untouched; network-flavored failures become NETWORK_ERROR and anything
// else from the store path becomes FIRESTORE_ERROR.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	// A canceled caller is not a store failure.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if looksTransient(err) {
		return Network(op, err)
	}
	return Firestore(op, err)
}

// looksTransient applies the network heuristics used for unclassified
// errors: typed net errors first, then message fragments.
func looksTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, frag := range []string{
		"timeout",
		"connection",
		"network",
		"dns",
		"unavailable",
		"offline",
	} {
		if strings.Contains(errStr, frag) {
			return true
		}
	}
	return false
}
