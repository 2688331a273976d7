package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blobguard/internal/checksum"
	"blobguard/internal/models"
	"blobguard/internal/network"
	"blobguard/internal/retry"
)

const (
	DefaultMonitorInterval    = 5 * time.Second
	DefaultMonitorMaxAttempts = 10
	DefaultMonitorTimeout     = 5 * time.Minute
)

// MonitorOptions bounds one monitoring loop. The loop stops at MaxAttempts or
// Timeout, whichever comes first. A zero Timeout means attempts only.
type MonitorOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// AvailabilityMonitor re-reads a blob until its digests match. A checksum
// mismatch and a failed read are treated alike: the retry budget is the only
// thing separating replication lag from corruption.
type AvailabilityMonitor struct {
	storage network.StorageClient
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewAvailabilityMonitor(storage network.StorageClient, logger *slog.Logger) *AvailabilityMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityMonitor{
		storage: storage,
		logger:  logger.With("component", "availability_monitor"),
		active:  map[string]struct{}{},
	}
}

// MonitorBlobAvailability returns nil on the first attempt whose digests match
// expected, or *AvailabilityMonitoringFailedError once the budget is spent.
// Only one loop per blob id may run at a time.
func (m *AvailabilityMonitor) MonitorBlobAvailability(ctx context.Context, blobID string, expected models.Checksums, opts MonitorOptions) error {
	if m == nil || m.storage == nil {
		return fmt.Errorf("availability monitor is not configured")
	}
	if expected.IsZero() {
		return fmt.Errorf("expected checksums are required")
	}
	opts = opts.withDefaults()

	if !m.acquire(blobID) {
		return fmt.Errorf("%w: %s", ErrMonitorBusy, blobID)
	}
	defer m.release(blobID)

	start := time.Now()
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = start.Add(opts.Timeout)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = m.check(ctx, blobID, expected, deadline)
		if lastErr == nil {
			m.logger.Info("blob available", "blob_id", blobID, "attempt", attempt, "elapsed", time.Since(start))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.logger.Debug("availability attempt failed", "blob_id", blobID, "attempt", attempt, "error", lastErr)

		if attempt >= opts.MaxAttempts || (!deadline.IsZero() && time.Now().Add(opts.Interval).After(deadline)) {
			m.logger.Error("availability monitoring failed", "blob_id", blobID, "attempts", attempt, "error", lastErr)
			return &AvailabilityMonitoringFailedError{BlobID: blobID, Attempts: attempt, Elapsed: time.Since(start), LastErr: lastErr}
		}
		if err := retry.Sleep(ctx, opts.Interval); err != nil {
			return err
		}
	}
}

// Active reports whether a monitoring loop is running for blobID.
func (m *AvailabilityMonitor) Active(blobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[blobID]
	return ok
}

func (m *AvailabilityMonitor) check(ctx context.Context, blobID string, expected models.Checksums, deadline time.Time) error {
	readCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	data, err := m.storage.ReadBlob(readCtx, blobID)
	if err != nil {
		return &NetworkError{Op: "read blob", BlobID: blobID, Err: err}
	}
	actual := checksum.Compute(data)
	if !actual.Matches(expected) {
		return &ContentMismatchError{BlobID: blobID, Expected: expected, Actual: actual}
	}
	return nil
}

func (m *AvailabilityMonitor) acquire(blobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[blobID]; ok {
		return false
	}
	m.active[blobID] = struct{}{}
	return true
}

func (m *AvailabilityMonitor) release(blobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, blobID)
}

func (o MonitorOptions) withDefaults() MonitorOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultMonitorInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMonitorMaxAttempts
	}
	return o
}
