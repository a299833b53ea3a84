package notify

import "time"

const (
	maxAttempts           = 3
	defaultBaseTimeout    = 10 * time.Second
	defaultInitialBackoff = 2 * time.Second
	defaultTargetPause    = time.Second
)

// Policy is the retry schedule for one delivery target. It is pure state:
// Plan computes per-attempt deadlines without touching the network.
type Policy struct {
	MaxAttempts    int
	BaseTimeout    time.Duration
	InitialBackoff time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    maxAttempts,
		BaseTimeout:    defaultBaseTimeout,
		InitialBackoff: defaultInitialBackoff,
	}
}

// Plan returns the attempt timeout and the backoff to wait before the
// next attempt. The timeout grows linearly with the attempt number, the
// backoff doubles per attempt, and there is no backoff after the final
// attempt. Attempts are 1-based.
func (p Policy) Plan(attempt int) (timeout, backoff time.Duration) {
	timeout = p.BaseTimeout * time.Duration(attempt)

	if attempt >= p.MaxAttempts {
		return timeout, 0
	}

	backoff = p.InitialBackoff << (attempt - 1)

	return timeout, backoff
}
