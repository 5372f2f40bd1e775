// Package admin provides administrative operations on the archive collection.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/archive/internal/gateway"
	"github.com/JonMunkholm/archive/internal/logging"
)

// ResetTimeout is the maximum duration for clearing the archive.
const ResetTimeout = 5 * time.Minute

// ErrNotConfirmed is returned when a destructive operation was not confirmed.
var ErrNotConfirmed = errors.New("refusing to clear the archive without confirmation")

// Clearer deletes every record of the collection.
type Clearer interface {
	ClearAll(ctx context.Context) gateway.BatchResult
}

// ClearArchive deletes every record. This is a destructive operation and
// requires confirm to be set.
func ClearArchive(ctx context.Context, c Clearer, confirm bool) (gateway.BatchResult, error) {
	if !confirm {
		return gateway.BatchResult{}, ErrNotConfirmed
	}

	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	res := c.ClearAll(ctx)
	log := logging.FromContext(ctx)
	if !res.Success {
		err := res.Err()
		if err == nil {
			err = fmt.Errorf("clear archive: %d of %d deletes failed", res.Attempted-res.Succeeded, res.Attempted)
		}
		log.Error("clear archive failed",
			"attempted", res.Attempted,
			"succeeded", res.Succeeded,
			"error", err,
		)
		return res, err
	}
	log.Info("archive cleared", "deleted", res.Succeeded)
	return res, nil
}
