// Package expiry watches tracked blobs and renews storage before it lapses.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"blobguard/internal/models"
	"blobguard/internal/network"
)

const (
	DefaultCheckInterval      = time.Hour
	DefaultWarningThreshold   = 7
	DefaultAutoRenewThreshold = 3
	DefaultRenewalPeriod      = 5
	DefaultEpochDuration      = 24 * time.Hour
)

// State is the per-record classification made on every scan.
type State string

const (
	StateHealthy      State = "healthy"
	StateWarning      State = "warning"
	StateAutoRenewing State = "auto_renewing"
)

// Vault is the tracking-store surface used by the monitor.
type Vault interface {
	GetExpiringBlobs(ctx context.Context, untilEpoch int64) ([]models.BlobRecord, error)
	GetBlobRecord(ctx context.Context, blobID string) (*models.BlobRecord, error)
	UpdateBlobExpiry(ctx context.Context, blobID string, newEpoch int64) (bool, error)
	RecordRenewal(ctx context.Context, entry models.RenewalEntry) error
}

// Config controls scan cadence and thresholds. Thresholds are in days;
// RenewalPeriod is in epochs.
type Config struct {
	CheckInterval      time.Duration
	WarningThreshold   int
	AutoRenewThreshold int
	RenewalPeriod      int64
	EpochDuration      time.Duration
	Signer             network.Signer
}

// Warning is passed to warning callbacks once per threshold crossing.
type Warning struct {
	Record        models.BlobRecord
	CurrentEpoch  int64
	DaysRemaining float64
}

// Renewal is passed to renewal callbacks after the vault is updated.
type Renewal struct {
	BlobID        string
	PreviousEpoch int64
	AddedEpochs   int64
	Receipt       network.ExtensionReceipt
}

// ScanReport summarizes one scan.
type ScanReport struct {
	ScanID       string   `json:"scan_id"`
	CurrentEpoch int64    `json:"current_epoch"`
	Checked      int      `json:"checked"`
	Warned       int      `json:"warned"`
	Renewed      int      `json:"renewed"`
	Failed       int      `json:"failed"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors,omitempty"`
}

// Monitor scans the vault for expiring blobs, warns, and renews them.
// At most one renewal per blob id is ever in flight.
type Monitor struct {
	cfg    Config
	ledger network.LedgerClient
	vault  Vault
	logger *slog.Logger

	mu              sync.Mutex
	inflight        map[string]struct{}
	warned          map[string]int64
	pending         map[string]pendingRenewal
	onWarning       []func(Warning)
	onRenewal       []func(Renewal)
	onRenewalFailed []func(*RenewalTransactionFailedError)

	lifeMu  sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor validates cfg and builds a monitor.
func NewMonitor(cfg Config, ledger network.LedgerClient, vault Vault, logger *slog.Logger) (*Monitor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if ledger == nil || vault == nil {
		return nil, fmt.Errorf("expiry monitor requires a ledger and a vault")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		ledger:   ledger,
		vault:    vault,
		logger:   logger.With("component", "expiry"),
		inflight: map[string]struct{}{},
		warned:   map[string]int64{},
		pending:  map[string]pendingRenewal{},
	}, nil
}

// OnWarning registers a warning callback.
func (m *Monitor) OnWarning(fn func(Warning)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarning = append(m.onWarning, fn)
}

// OnRenewal registers a renewal callback.
func (m *Monitor) OnRenewal(fn func(Renewal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRenewal = append(m.onRenewal, fn)
}

// OnRenewalFailed registers a callback for failed renewals.
func (m *Monitor) OnRenewalFailed(fn func(*RenewalTransactionFailedError)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRenewalFailed = append(m.onRenewalFailed, fn)
}

// Start runs a scan immediately and then once per CheckInterval until Stop
// or ctx cancellation. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("expiry monitor started", "interval", m.cfg.CheckInterval, "warning_days", m.cfg.WarningThreshold, "auto_renew_days", m.cfg.AutoRenewThreshold)
}

// Stop cancels outstanding work and waits for scans to return. Stopping a
// stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.lifeMu.Lock()
	if !m.running {
		m.lifeMu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.lifeMu.Unlock()

	m.wg.Wait()
	m.logger.Info("expiry monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.scanAsync(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.scanAsync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// scanAsync lets a slow scan overlap the next tick; the in-flight set keeps
// overlapping scans from renewing the same blob twice.
func (m *Monitor) scanAsync(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.Scan(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("expiry scan failed", "error", err)
		}
	}()
}

// Scan evaluates every blob inside the warning horizon once and waits for
// the renewals it dispatched.
func (m *Monitor) Scan(ctx context.Context) (ScanReport, error) {
	report := ScanReport{ScanID: uuid.NewString()}
	logger := m.logger.With("scan_id", report.ScanID)

	epoch, err := m.ledger.GetSystemEpoch(ctx)
	if err != nil {
		return report, fmt.Errorf("get system epoch: %w", err)
	}
	report.CurrentEpoch = epoch

	horizon := epoch + m.daysToEpochs(max(m.cfg.WarningThreshold, m.cfg.AutoRenewThreshold))
	records, err := m.vault.GetExpiringBlobs(ctx, horizon)
	if err != nil {
		return report, fmt.Errorf("list expiring blobs: %w", err)
	}

	var (
		wg       sync.WaitGroup
		reportMu sync.Mutex
	)
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		seen[record.BlobID] = struct{}{}
		report.Checked++
		days := m.daysRemaining(record.ExpirationEpoch, epoch)
		switch m.classify(days) {
		case StateHealthy:
			m.clearWarned(record.BlobID)
		case StateWarning:
			if m.markWarned(record.BlobID, record.ExpirationEpoch) {
				report.Warned++
				logger.Warn("blob nearing expiry", "blob_id", record.BlobID, "expiration_epoch", record.ExpirationEpoch, "days_remaining", days)
				m.emitWarning(Warning{Record: record, CurrentEpoch: epoch, DaysRemaining: days})
			}
		case StateAutoRenewing:
			if !m.acquire(record.BlobID) {
				report.Skipped++
				logger.Debug("renewal already in flight", "blob_id", record.BlobID)
				continue
			}
			wg.Add(1)
			go func(blobID string) {
				defer wg.Done()
				defer m.release(blobID)
				outcome, err := m.renew(ctx, logger, blobID, epoch)
				reportMu.Lock()
				defer reportMu.Unlock()
				switch {
				case err != nil:
					report.Failed++
					report.Errors = append(report.Errors, err.Error())
				case outcome:
					report.Renewed++
				default:
					report.Skipped++
				}
			}(record.BlobID)
		}
	}
	wg.Wait()
	m.pruneWarned(seen)

	logger.Info("expiry scan complete", "epoch", epoch, "checked", report.Checked, "warned", report.Warned, "renewed", report.Renewed, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// renew re-reads the record under the in-flight guard so that a renewal
// finished by an overlapping scan is not repeated. It reports whether a
// renewal was submitted and applied.
func (m *Monitor) renew(ctx context.Context, logger *slog.Logger, blobID string, epoch int64) (bool, error) {
	record, err := m.vault.GetBlobRecord(ctx, blobID)
	if err != nil {
		return false, m.renewalFailed(logger, blobID, fmt.Errorf("reload record: %w", err))
	}
	if record == nil {
		m.takePending(blobID)
		logger.Debug("record dropped before renewal", "blob_id", blobID)
		return false, nil
	}

	// A receipt whose vault update failed is applied again rather than
	// paying for a second extension.
	renewal, resumed := m.takePending(blobID)
	if resumed && renewal.receipt.NewExpirationEpoch <= record.ExpirationEpoch {
		resumed = false
	}
	if !resumed {
		if m.classify(m.daysRemaining(record.ExpirationEpoch, epoch)) != StateAutoRenewing {
			return false, nil
		}
		logger.Info("renewing blob", "blob_id", blobID, "expiration_epoch", record.ExpirationEpoch, "additional_epochs", m.cfg.RenewalPeriod)
		receipt, err := m.ledger.SubmitStorageExtension(ctx, blobID, m.cfg.RenewalPeriod, m.cfg.Signer)
		if err != nil {
			return false, m.renewalFailed(logger, blobID, err)
		}
		renewal = pendingRenewal{receipt: receipt, previousEpoch: record.ExpirationEpoch}
	} else {
		logger.Info("applying pending renewal", "blob_id", blobID, "digest", renewal.receipt.Digest, "new_expiration_epoch", renewal.receipt.NewExpirationEpoch)
	}

	receipt := renewal.receipt
	if _, err := m.vault.UpdateBlobExpiry(ctx, blobID, receipt.NewExpirationEpoch); err != nil {
		m.putPending(blobID, renewal)
		return false, m.renewalFailed(logger, blobID, fmt.Errorf("transaction %s applied but vault update failed: %w", receipt.Digest, err))
	}
	entry := models.RenewalEntry{
		BlobID:             blobID,
		Digest:             receipt.Digest,
		AddedEpochs:        m.cfg.RenewalPeriod,
		PreviousEpoch:      renewal.previousEpoch,
		NewExpirationEpoch: receipt.NewExpirationEpoch,
	}
	if err := m.vault.RecordRenewal(ctx, entry); err != nil {
		logger.Warn("record renewal history failed", "blob_id", blobID, "digest", receipt.Digest, "error", err)
	}
	m.clearWarned(blobID)

	logger.Info("blob renewed", "blob_id", blobID, "digest", receipt.Digest, "new_expiration_epoch", receipt.NewExpirationEpoch)
	m.emitRenewal(Renewal{BlobID: blobID, PreviousEpoch: renewal.previousEpoch, AddedEpochs: m.cfg.RenewalPeriod, Receipt: receipt})
	return true, nil
}

// pendingRenewal is a submitted extension not yet reflected in the vault.
type pendingRenewal struct {
	receipt       network.ExtensionReceipt
	previousEpoch int64
}

func (m *Monitor) putPending(blobID string, p pendingRenewal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[blobID] = p
}

func (m *Monitor) takePending(blobID string) (pendingRenewal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[blobID]
	delete(m.pending, blobID)
	return p, ok
}

func (m *Monitor) renewalFailed(logger *slog.Logger, blobID string, err error) error {
	failure := &RenewalTransactionFailedError{BlobID: blobID, AdditionalEpochs: m.cfg.RenewalPeriod, Err: err}
	logger.Error("renewal failed; will retry next scan", "blob_id", blobID, "error", err)
	m.mu.Lock()
	callbacks := append([]func(*RenewalTransactionFailedError){}, m.onRenewalFailed...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(failure)
	}
	return failure
}

// Classify returns the state of a record at the given epoch.
func (m *Monitor) Classify(record models.BlobRecord, currentEpoch int64) State {
	return m.cfg.Classify(record.ExpirationEpoch, currentEpoch)
}

func (m *Monitor) classify(days float64) State {
	return m.cfg.classifyDays(days)
}

func (m *Monitor) daysRemaining(expirationEpoch, currentEpoch int64) float64 {
	return m.cfg.DaysRemaining(expirationEpoch, currentEpoch)
}

func (m *Monitor) daysToEpochs(days int) int64 {
	return int64(math.Ceil(float64(days) * 24 / m.cfg.EpochDuration.Hours()))
}

// Classify maps an expiration epoch to a state without needing a monitor.
func (c Config) Classify(expirationEpoch, currentEpoch int64) State {
	c = c.withDefaults()
	return c.classifyDays(c.DaysRemaining(expirationEpoch, currentEpoch))
}

// DaysRemaining converts the epochs left before expiry into days.
func (c Config) DaysRemaining(expirationEpoch, currentEpoch int64) float64 {
	c = c.withDefaults()
	return float64(expirationEpoch-currentEpoch) * c.EpochDuration.Hours() / 24
}

func (c Config) classifyDays(days float64) State {
	switch {
	case days <= float64(c.AutoRenewThreshold):
		return StateAutoRenewing
	case days <= float64(c.WarningThreshold):
		return StateWarning
	default:
		return StateHealthy
	}
}

func (m *Monitor) acquire(blobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[blobID]; ok {
		return false
	}
	m.inflight[blobID] = struct{}{}
	return true
}

func (m *Monitor) release(blobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, blobID)
}

// markWarned reports whether this (blob, expiration) pair has not been warned yet.
func (m *Monitor) markWarned(blobID string, expirationEpoch int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.warned[blobID]; ok && prev == expirationEpoch {
		return false
	}
	m.warned[blobID] = expirationEpoch
	return true
}

func (m *Monitor) clearWarned(blobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.warned, blobID)
}

// pruneWarned forgets blobs that were dropped or left the warning horizon.
func (m *Monitor) pruneWarned(seen map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for blobID := range m.warned {
		if _, ok := seen[blobID]; !ok {
			delete(m.warned, blobID)
		}
	}
}

func (m *Monitor) emitWarning(w Warning) {
	m.mu.Lock()
	callbacks := append([]func(Warning){}, m.onWarning...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(w)
	}
}

func (m *Monitor) emitRenewal(r Renewal) {
	m.mu.Lock()
	callbacks := append([]func(Renewal){}, m.onRenewal...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(r)
	}
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.EpochDuration <= 0 {
		c.EpochDuration = DefaultEpochDuration
	}
	if c.RenewalPeriod <= 0 {
		c.RenewalPeriod = DefaultRenewalPeriod
	}
	return c
}

func (c Config) validate() error {
	if c.WarningThreshold < 0 || c.AutoRenewThreshold < 0 {
		return fmt.Errorf("expiry thresholds must be non-negative")
	}
	if c.AutoRenewThreshold > c.WarningThreshold {
		return fmt.Errorf("auto-renew threshold (%d days) exceeds warning threshold (%d days)", c.AutoRenewThreshold, c.WarningThreshold)
	}
	if c.Signer == nil {
		return fmt.Errorf("expiry monitor requires a signer for renewals")
	}
	return nil
}
