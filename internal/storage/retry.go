package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/openstats-labs/statcube/pkg/core"
)

// retryAttempts is the number of retries after the first failure.
const retryAttempts = 4

// retryBase is the initial backoff interval; it doubles per attempt.
const retryBase = 100 * time.Millisecond

// LoadWithRetry loads a buffer, retrying transient storage failures with
// exponential backoff. A missing buffer is permanent and returned
// immediately.
func LoadWithRetry(ctx context.Context, store BufferStore, name, directory string) ([]byte, error) {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))

	var data []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var loadErr error
		data, loadErr = store.LoadBuffer(ctx, name, directory)
		if loadErr == nil {
			return nil
		}

		var storageErr *core.StorageError
		if errors.As(loadErr, &storageErr) && !IsNotFound(loadErr) {
			return retry.RetryableError(loadErr)
		}
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
