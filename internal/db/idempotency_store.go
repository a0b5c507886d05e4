package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type IdempotencyState int

const (
	// IdempotencyClaimed means the caller now owns the key and must finalize or release it.
	IdempotencyClaimed IdempotencyState = iota
	// IdempotencyInFlight means another request holds the key and has not committed yet.
	IdempotencyInFlight
	// IdempotencyCommitted means the owning request committed a booking but stored no response.
	IdempotencyCommitted
	// IdempotencyCompleted means a final response is stored.
	IdempotencyCompleted
)

// IdempotentResponse is a stored response replayed for a repeated Idempotency-Key.
type IdempotentResponse struct {
	StatusCode int
	Body       []byte
	CreatedAt  time.Time
}

type IdempotencyClaim struct {
	State     IdempotencyState
	BookingID string
	Response  IdempotentResponse
}

// ClaimIdempotencyKey claims scope and key for the caller or reports who holds them. A pending
// claim older than staleAfter with no booking bound to it is taken over.
func (db *DB) ClaimIdempotencyKey(ctx context.Context, scope, key string, now time.Time, staleAfter time.Duration) (IdempotencyClaim, error) {
	var claim IdempotencyClaim
	err := db.RunInTx(ctx, func(tx *DB) error {
		row, err := tx.Queries.GetIdempotencyKey(ctx, scope, key)
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.Queries.InsertIdempotencyClaim(ctx, scope, key, now.UTC()); err != nil {
				return fmt.Errorf("insert idempotency claim: %w", err)
			}
			claim = IdempotencyClaim{State: IdempotencyClaimed}
			return nil
		}
		if err != nil {
			return fmt.Errorf("load idempotency key: %w", err)
		}

		claim = claimFromRow(row)
		if claim.State != IdempotencyInFlight || staleAfter <= 0 {
			return nil
		}
		if row.ClaimedAt.Valid && now.Sub(row.ClaimedAt.Time) < staleAfter {
			return nil
		}
		if _, err := tx.Queries.RenewIdempotencyClaim(ctx, scope, key, now.UTC()); err != nil {
			return fmt.Errorf("renew idempotency claim: %w", err)
		}
		claim = IdempotencyClaim{State: IdempotencyClaimed}
		return nil
	})
	if err != nil {
		return IdempotencyClaim{}, err
	}
	return claim, nil
}

func claimFromRow(row IdempotencyRow) IdempotencyClaim {
	switch {
	case row.StatusCode > 0:
		return IdempotencyClaim{
			State:     IdempotencyCompleted,
			BookingID: row.BookingID,
			Response:  IdempotentResponse{StatusCode: int(row.StatusCode), Body: row.ResponseBody, CreatedAt: row.CreatedAt},
		}
	case row.BookingID != "":
		return IdempotencyClaim{State: IdempotencyCommitted, BookingID: row.BookingID}
	default:
		return IdempotencyClaim{State: IdempotencyInFlight}
	}
}

// FinalizeIdempotencyKey stores the final response for a claimed key. The first stored
// response wins.
func (db *DB) FinalizeIdempotencyKey(ctx context.Context, scope, key string, resp IdempotentResponse) error {
	if _, err := db.Queries.FinalizeIdempotencyKey(ctx, scope, key, int64(resp.StatusCode), resp.Body); err != nil {
		return fmt.Errorf("finalize idempotency key: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey drops a pending claim so a retry can run again. Claims that already
// have a booking or a response are kept.
func (db *DB) ReleaseIdempotencyKey(ctx context.Context, scope, key string) error {
	if _, err := db.Queries.DeleteIdempotencyClaim(ctx, scope, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// PurgeIdempotencyKeys deletes keys created before cutoff.
func (db *DB) PurgeIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := db.Queries.DeleteIdempotencyKeysBefore(ctx, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return deleted, nil
}
