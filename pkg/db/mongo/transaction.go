package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	apperrors "innkeep/pkg/errors"
)

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client     *mongo.Client
	maxRetries int
	backoff    time.Duration
}

func NewTransactionManager(client *mongo.Client, maxRetries int, backoff time.Duration) TransactionManager {
	return &mongoTransactionManager{
		client:     client,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// ExecuteTransaction runs fn inside a session transaction. Serialization
// conflicts (the TransientTransactionError label) are retried a bounded number
// of times with backoff, then surfaced as a retryable TRANSIENT error rather
// than permanent failure. Business errors pass through untouched.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.backoff * time.Duration(attempt)):
			}
		}

		err := m.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if apperrors.IsAppError(err) {
			return err
		}
		if !isTransient(err) {
			return fmt.Errorf("transaction failed: %w", err)
		}
		lastErr = err
	}

	return apperrors.Transient("Operation conflicted with concurrent writes, please try again", lastErr)
}

func (m *mongoTransactionManager) runOnce(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func isTransient(err error) bool {
	var cmdErr mongo.CommandError
	if ok := asCommandError(err, &cmdErr); ok {
		return cmdErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}

func asCommandError(err error, target *mongo.CommandError) bool {
	for err != nil {
		if ce, ok := err.(mongo.CommandError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
