// Package idempotency makes handlers run at most once per key under at-least-once delivery.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultLockTTL bounds how long a crashed execution can block its key.
const DefaultLockTTL = 5 * time.Minute

var ErrRequestInProgress = errors.New("request with this key is already in progress")

type Operation func(ctx context.Context) (interface{}, error)

type Result struct {
	Response  interface{}
	FromCache bool
}

type Manager interface {
	// Execute runs fn unless key already completed. A failed fn leaves the key free for a retry.
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: DefaultLockTTL,
		log:     log,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	if record != nil && record.Status == StatusCompleted {
		return cached(record)
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}
	if !locked {
		return nil, ErrRequestInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.WarnContext(ctx, "failed to release idempotency lock", "key", key, "error", err)
		}
	}()

	// another worker may have finished between Get and Lock
	if record, err := m.store.Get(ctx, key); err == nil && record != nil && record.Status == StatusCompleted {
		return cached(record)
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode idempotent response: %w", err)
	}

	if err := m.store.Set(ctx, key, &Record{
		Status:   StatusCompleted,
		Response: responseBytes,
	}, ttl); err != nil {
		m.log.WarnContext(ctx, "failed to store idempotency record", "key", key, "error", err)
	}

	return &Result{
		Response:  result,
		FromCache: false,
	}, nil
}

func cached(record *Record) (*Result, error) {
	var response interface{}
	if len(record.Response) > 0 {
		if err := json.Unmarshal(record.Response, &response); err != nil {
			return nil, fmt.Errorf("decode idempotent response: %w", err)
		}
	}
	return &Result{Response: response, FromCache: true}, nil
}
