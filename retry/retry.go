package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop: at most Attempts calls, Delay between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

var DefaultPolicy = Policy{Attempts: 3, Delay: 10 * time.Millisecond}

// Stop marks err as not worth retrying. Do returns the unwrapped error.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Stop error, or the attempts are used up.
// The returned error is the last one op produced.
func Do(p Policy, op func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	err := backoff.Retry(func() error {
		attempt++
		return op(attempt)
	}, b)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
