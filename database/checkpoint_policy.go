package database

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CheckpointPolicy decides whether a successful DML should trigger a
// checkpoint. The zero value (and WithEveryDML) preserves the
// specification's literal "checkpoint after every successful DML"
// behavior. WithCheckpointInterval trades that guarantee for throughput by
// coalescing checkpoints through a token-bucket limiter: once a token is
// available, the next DML pays for a checkpoint and the bucket refills
// over the configured interval.
type CheckpointPolicy struct {
	limiter *rate.Limiter
	mu      sync.Mutex
}

// WithEveryDML returns the default policy: every successful DML
// checkpoints, exactly as specified.
func WithEveryDML() *CheckpointPolicy {
	return &CheckpointPolicy{}
}

// WithCheckpointInterval allows at most one checkpoint per interval,
// regardless of how many DML calls succeed in between.
func WithCheckpointInterval(interval time.Duration) *CheckpointPolicy {
	return &CheckpointPolicy{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// ShouldCheckpoint reports whether the caller should checkpoint now,
// consuming a token if a limiter is configured.
func (p *CheckpointPolicy) ShouldCheckpoint() bool {
	if p == nil || p.limiter == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limiter.Allow()
}
