package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/civicportal/portal-sync/internal/model"
)

func newLimiter(rps float64) *rate.Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// endpointFor builds the per-API base path under a shared endpoint override
func endpointFor(base, source string) string {
	base = strings.TrimSuffix(base, "/")
	if source == model.SourceDrive {
		return base + "/drive/v3/"
	}
	return base + "/"
}

// wait blocks on the limiter, reporting a cancelled wait as transient
func wait(ctx context.Context, limiter *rate.Limiter, op, id string) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientFetchError{Op: op, ID: id, Err: err}
	}
	return nil
}

// classifyGoogleError maps a Google API error onto the connector error contract.
// Listing errors that point at the container itself become *ConfigError.
func classifyGoogleError(op, id string, err error, listing bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// Transport failures and request timeouts
		return &TransientFetchError{Op: op, ID: id, Err: err}
	}

	switch {
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
		return &TransientFetchError{Op: op, ID: id, Err: err}
	case gerr.Code == http.StatusForbidden && isRateLimited(gerr):
		return &TransientFetchError{Op: op, ID: id, Err: err}
	case listing && (gerr.Code == http.StatusNotFound ||
		gerr.Code == http.StatusBadRequest ||
		gerr.Code == http.StatusUnauthorized ||
		gerr.Code == http.StatusForbidden):
		return &ConfigError{ContainerID: id, Reason: fmt.Sprintf("%s rejected with status %d", op, gerr.Code), Err: err}
	case gerr.Code == http.StatusNotFound:
		return &NotFoundError{ExternalID: id}
	default:
		return fmt.Errorf("%s of %s failed: %w", op, id, err)
	}
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

// readCapped reads at most maxBytes from r and fails with ErrContentTooLarge beyond that
func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrContentTooLarge, maxBytes)
	}
	return data, nil
}
