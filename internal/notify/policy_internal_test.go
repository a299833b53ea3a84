package notify

import (
	"testing"
	"time"
)

func TestPolicyPlan(t *testing.T) {
	policy := Policy{
		MaxAttempts:    3,
		BaseTimeout:    10 * time.Second,
		InitialBackoff: 2 * time.Second,
	}

	tests := []struct {
		attempt     int
		wantTimeout time.Duration
		wantBackoff time.Duration
	}{
		{attempt: 1, wantTimeout: 10 * time.Second, wantBackoff: 2 * time.Second},
		{attempt: 2, wantTimeout: 20 * time.Second, wantBackoff: 4 * time.Second},
		{attempt: 3, wantTimeout: 30 * time.Second, wantBackoff: 0},
	}

	for _, tt := range tests {
		timeout, backoff := policy.Plan(tt.attempt)

		if timeout != tt.wantTimeout {
			t.Fatalf("attempt %d: timeout mismatch: got %v want %v",
				tt.attempt, timeout, tt.wantTimeout)
		}

		if backoff != tt.wantBackoff {
			t.Fatalf("attempt %d: backoff mismatch: got %v want %v",
				tt.attempt, backoff, tt.wantBackoff)
		}
	}
}

func TestDefaultPolicyHasBoundedAttempts(t *testing.T) {
	policy := DefaultPolicy()

	if policy.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", policy.MaxAttempts)
	}

	if _, backoff := policy.Plan(policy.MaxAttempts); backoff != 0 {
		t.Fatalf("expected no backoff after the final attempt, got %v", backoff)
	}
}
