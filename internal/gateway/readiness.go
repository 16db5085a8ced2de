package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"stackctl/internal/logging"
)

// ErrNotReady is returned when the control plane never reported a reachable datastore.
var ErrNotReady = errors.New("gateway not ready")

// ReachablePath selects the datastore flag in the /status document.
const ReachablePath = "$.database.reachable"

// StatusSource is the part of AdminClient the readiness gate needs.
type StatusSource interface {
	Status(ctx context.Context) (interface{}, error)
}

// Readiness polls the admin status endpoint with a fixed interval.
type Readiness struct {
	Client   StatusSource
	Attempts int
	Interval time.Duration
}

// Reachable reports whether a decoded status document marks the datastore reachable.
func Reachable(doc interface{}) bool {
	if doc == nil {
		return false
	}
	v, err := jsonpath.Get(ReachablePath, doc)
	if err != nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Wait blocks until the datastore is reachable, the attempts run out
// (ErrNotReady) or ctx is done.
func (r *Readiness) Wait(ctx context.Context) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	timer := logging.StartTimer(logging.CategoryGateway, "readiness wait")
	defer timer.Stop()

	var lastErr error
	for i := 1; i <= attempts; i++ {
		doc, err := r.Client.Status(ctx)
		switch {
		case err != nil:
			lastErr = err
			logging.GatewayDebug("readiness attempt %d/%d: %v", i, attempts, err)
		case Reachable(doc):
			logging.Gateway("gateway ready after %d attempt(s)", i)
			return nil
		default:
			lastErr = errors.New("datastore not reachable")
			logging.GatewayDebug("readiness attempt %d/%d: datastore not reachable", i, attempts)
		}

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Interval):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrNotReady, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrNotReady, attempts)
}
