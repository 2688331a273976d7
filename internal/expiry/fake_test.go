package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"blobguard/internal/models"
	"blobguard/internal/network"
)

var (
	errLedgerDown  = errors.New("ledger unavailable")
	errVaultLocked = errors.New("database is locked")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSigner struct{}

func (fakeSigner) Address() string { return "0xfeed" }

func (fakeSigner) Sign(context.Context, []byte) ([]byte, error) { return []byte("sig"), nil }

// fakeLedger extends blobs by the requested epochs. When gate is set each
// submission signals entered and blocks until gate is closed.
type fakeLedger struct {
	mu      sync.Mutex
	epoch   int64
	ends    map[string]int64
	submits map[string]int
	failN   int

	entered chan string
	gate    chan struct{}
}

func newFakeLedger(epoch int64) *fakeLedger {
	return &fakeLedger{epoch: epoch, ends: map[string]int64{}, submits: map[string]int{}}
}

func (l *fakeLedger) GetSystemEpoch(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch, nil
}

func (l *fakeLedger) GetObjectState(context.Context, string) (network.ObjectState, error) {
	return network.ObjectState{}, nil
}

func (l *fakeLedger) SubmitStorageExtension(ctx context.Context, blobID string, epochs int64, _ network.Signer) (network.ExtensionReceipt, error) {
	if l.entered != nil {
		l.entered <- blobID
	}
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return network.ExtensionReceipt{}, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits[blobID]++
	if l.failN > 0 {
		l.failN--
		return network.ExtensionReceipt{}, errLedgerDown
	}
	l.ends[blobID] += epochs
	return network.ExtensionReceipt{Digest: "tx-" + blobID, NewExpirationEpoch: l.ends[blobID]}, nil
}

func (l *fakeLedger) submitCount(blobID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits[blobID]
}

// fakeVault keeps records in memory. With staleList set, GetExpiringBlobs
// keeps returning the records as they were first stored.
type fakeVault struct {
	mu        sync.Mutex
	records   map[string]models.BlobRecord
	snapshot  []models.BlobRecord
	staleList bool
	renewals  []models.RenewalEntry
	updateErr int
}

func newFakeVault() *fakeVault {
	return &fakeVault{records: map[string]models.BlobRecord{}}
}

func (v *fakeVault) add(l *fakeLedger, blobID string, expiration int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	record := models.BlobRecord{BlobID: blobID, RegisteredEpoch: 1, ExpirationEpoch: expiration}
	v.records[blobID] = record
	v.snapshot = append(v.snapshot, record)
	l.mu.Lock()
	l.ends[blobID] = expiration
	l.mu.Unlock()
}

func (v *fakeVault) GetExpiringBlobs(_ context.Context, untilEpoch int64) ([]models.BlobRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	source := v.snapshot
	if !v.staleList {
		source = source[:0:0]
		for _, r := range v.records {
			source = append(source, r)
		}
	}
	var out []models.BlobRecord
	for _, r := range source {
		if r.ExpirationEpoch <= untilEpoch {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlobID < out[j].BlobID })
	return out, nil
}

func (v *fakeVault) GetBlobRecord(_ context.Context, blobID string) (*models.BlobRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.records[blobID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (v *fakeVault) UpdateBlobExpiry(_ context.Context, blobID string, newEpoch int64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.updateErr > 0 {
		v.updateErr--
		return false, errVaultLocked
	}
	r := v.records[blobID]
	if newEpoch <= r.ExpirationEpoch {
		return false, nil
	}
	r.ExpirationEpoch = newEpoch
	v.records[blobID] = r
	return true, nil
}

func (v *fakeVault) RecordRenewal(_ context.Context, entry models.RenewalEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renewals = append(v.renewals, entry)
	return nil
}

func (v *fakeVault) expiration(blobID string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.records[blobID].ExpirationEpoch
}

func (v *fakeVault) drop(blobID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.records, blobID)
}

func (l *fakeLedger) end(blobID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ends[blobID]
}
