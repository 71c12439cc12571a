package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker tracks the health of each notification sink in Redis so
// that every worker process shares the same view.
// State transitions: closed → open → half-open → closed
//
// - Closed: notifications flow; failures are counted.
// - Open: notifications to the sink are skipped until the cooldown elapses.
// - Half-open: one probe is let through. Success closes, failure re-opens.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// CircuitBreakerState is the externally visible state of one sink.
type CircuitBreakerState struct {
	Sink         string `json:"sink"`
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, threshold int, cooldown time.Duration, logger *slog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: threshold,
		cooldownPeriod:   cooldown,
	}
}

func cbKey(sink string) string {
	return fmt.Sprintf("cb:sink:%s", sink)
}

// Allow reports whether a notification to sink should be attempted. Redis
// errors fail open: a notification is cheaper to retry than to lose.
func (cb *CircuitBreaker) Allow(ctx context.Context, sink string) (string, bool) {
	key := cbKey(sink)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return StateClosed, true
	}

	state := data["state"]
	if state != StateOpen && state != StateHalfOpen {
		return StateClosed, true
	}

	if state == StateOpen {
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if time.Since(time.Unix(lastFailedAt, 0)) < cb.cooldownPeriod {
			return StateOpen, false
		}
	}

	// Only one caller wins the probe. The probe marker expires so that a
	// probe which never reports back does not wedge the circuit.
	won, err := cb.redisClient.SetNX(ctx, key+":probe", time.Now().Unix(), cb.cooldownPeriod).Result()
	if err != nil || !won {
		return state, false
	}
	if state == StateOpen {
		cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "sink", sink)
	}
	return StateHalfOpen, true
}

// RecordSuccess closes the circuit for sink.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, sink string) {
	key := cbKey(sink)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	_, err := cb.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "state", StateClosed, "failures", 0)
		pipe.Del(ctx, key+":probe")
		return nil
	})
	if err != nil {
		cb.logger.Error("failed to record circuit breaker success", "error", err, "sink", sink)
		return
	}

	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "sink", sink)
	}
}

// RecordFailure counts a failed notification and opens the circuit once the
// threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, sink string) {
	key := cbKey(sink)

	var incr *redis.IntCmd
	var state *redis.StringCmd
	_, err := cb.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, "failures", 1)
		pipe.HSet(ctx, key, "last_failed_at", time.Now().Unix())
		state = pipe.HGet(ctx, key, "state")
		return nil
	})
	if err != nil && err != redis.Nil {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "sink", sink)
		return
	}

	failures := incr.Val()
	switch {
	case state.Val() == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.redisClient.Del(ctx, key+":probe")
		cb.logger.Warn("circuit breaker re-opened (probe failed)", "sink", sink)
	case failures >= int64(cb.failureThreshold) && state.Val() != StateOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"sink", sink,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	case state.Val() == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// GetState returns the current state for sink without changing it.
func (cb *CircuitBreaker) GetState(ctx context.Context, sink string) CircuitBreakerState {
	data, err := cb.redisClient.HGetAll(ctx, cbKey(sink)).Result()
	if err != nil || len(data) == 0 {
		return CircuitBreakerState{Sink: sink, State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	state := data["state"]
	if state == "" {
		state = StateClosed
	}

	if state == StateOpen {
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if time.Since(time.Unix(lastFailedAt, 0)) >= cb.cooldownPeriod {
			state = StateHalfOpen
		}
	}

	result := CircuitBreakerState{Sink: sink, State: state, Failures: failures}
	if ts, ok := data["last_failed_at"]; ok && ts != "" {
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			result.LastFailedAt = time.Unix(sec, 0).UTC().Format(time.RFC3339)
		}
	}
	return result
}
