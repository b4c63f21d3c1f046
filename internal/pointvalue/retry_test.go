package pointvalue

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("database is locked")

func isTestTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func TestWithRetry(t *testing.T) {
	errPermanent := errors.New("constraint failed")

	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "success first try",
			attempts:  5,
			wantCalls: 1,
		},
		{
			name:      "transient then success",
			attempts:  5,
			failures:  []error{errTransient, errTransient},
			wantCalls: 3,
		},
		{
			name:      "exhausted",
			attempts:  5,
			failures:  []error{errTransient, errTransient, errTransient, errTransient, errTransient},
			wantCalls: 5,
			wantErr:   ErrTransientConflict,
		},
		{
			name:      "permanent not retried",
			attempts:  5,
			failures:  []error{errPermanent},
			wantCalls: 1,
			wantErr:   errPermanent,
		},
		{
			name:      "zero attempts still tries once",
			attempts:  0,
			failures:  []error{errTransient},
			wantCalls: 1,
			wantErr:   ErrTransientConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := withRetry(context.Background(), ImmediateRetry(tt.attempts), isTestTransient,
				func(context.Context) (int, error) {
					calls++
					if calls <= len(tt.failures) {
						return 0, tt.failures[calls-1]
					}
					return 42, nil
				})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != 42 {
				t.Errorf("result = %d, want 42", got)
			}
		})
	}
}

func TestWithRetry_ExhaustedKeepsCause(t *testing.T) {
	_, err := withRetry(context.Background(), ImmediateRetry(2), isTestTransient,
		func(context.Context) (struct{}, error) {
			return struct{}{}, errTransient
		})

	if !errors.Is(err, ErrTransientConflict) {
		t.Errorf("error = %v, want ErrTransientConflict", err)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("error = %v, want cause preserved", err)
	}
}

func TestWithRetry_LinearBackoff(t *testing.T) {
	start := time.Now()
	calls := 0
	_, err := withRetry(context.Background(), LinearRetry(3, 10*time.Millisecond), isTestTransient,
		func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errTransient
		})

	if !errors.Is(err, ErrTransientConflict) {
		t.Fatalf("error = %v, want ErrTransientConflict", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Pauses of 10ms and 20ms between the three tries.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 30ms of backoff", elapsed)
	}
}

func TestWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := withRetry(ctx, LinearRetry(10, time.Hour), isTestTransient,
		func(context.Context) (struct{}, error) {
			calls++
			cancel()
			return struct{}{}, errTransient
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestLinearRetry_Backoff(t *testing.T) {
	p := LinearRetry(10, 100*time.Millisecond)
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 5: 500 * time.Millisecond, 9: 900 * time.Millisecond} {
		if got := p.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}
