package countdown

import "context"

// Repository is the durable holder of at most one TimerRecord. Implementations
// hold no policy: the App decides when to replace or clear.
type Repository interface {
	// GetCurrent returns the record, or nil when none exists. Records that
	// cannot be decoded yield ErrMalformedRecord.
	GetCurrent(ctx context.Context) (*TimerRecord, error)
	// Replace atomically retires any existing record and stores r.
	Replace(ctx context.Context, r TimerRecord) error
	// Clear removes any record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
