// Package localnet is an in-process storage network and ledger. Blob bytes
// live in a local content-addressed store; metadata is kept in memory and
// optionally persisted to a JSON state file.
package localnet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"blobguard/internal/blobstore"
	"blobguard/internal/models"
	"blobguard/internal/network"
)

var (
	// ErrUnavailable is a transient failure injected with FailNextReads.
	ErrUnavailable = errors.New("storage network unavailable")
	// ErrInvalidRequest reports a malformed write or extension.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownProvider is returned by SetProviderDown for unknown names.
	ErrUnknownProvider = errors.New("unknown storage provider")
)

const stateFileName = "localnet.json"

// DefaultProviders are used when Options.Providers is empty.
var DefaultProviders = []string{"node-0", "node-1", "node-2", "node-3"}

// Options configures a Network.
type Options struct {
	// Dir holds the blob tree and, when Persist is set, the state file.
	Dir     string
	Persist bool
	// Providers are the simulated storage node names.
	Providers []string
	// CertifyDelay is how long after a write a blob certifies. Zero
	// certifies on write; negative leaves certification to Certify.
	CertifyDelay time.Duration
	// EpochDuration advances the epoch with wall time when positive.
	EpochDuration time.Duration
	StartEpoch    int64
	Now           func() time.Time
	Logger        *slog.Logger
}

type blobEntry struct {
	BlobID          string            `json:"blob_id"`
	ObjectID        string            `json:"object_id"`
	Owner           string            `json:"owner"`
	Size            int64             `json:"size"`
	RegisteredEpoch int64             `json:"registered_epoch"`
	CertifiedEpoch  *int64            `json:"certified_epoch,omitempty"`
	EndEpoch        int64             `json:"end_epoch"`
	Version         int64             `json:"version"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	WrittenAt       time.Time         `json:"written_at"`
}

type state struct {
	Genesis     time.Time             `json:"genesis"`
	EpochOffset int64                 `json:"epoch_offset"`
	Blobs       map[string]*blobEntry `json:"blobs"`
	Down        map[string]bool       `json:"down,omitempty"`
}

// Network implements network.LedgerClient and network.StorageClient.
type Network struct {
	opts   Options
	cas    *blobstore.LocalCAS
	logger *slog.Logger

	mu        sync.Mutex
	state     state
	objects   map[string]string
	corrupted map[string]bool
	failReads map[string]int
}

var (
	_ network.LedgerClient  = (*Network)(nil)
	_ network.StorageClient = (*Network)(nil)
)

// Open creates or reloads a network rooted at opts.Dir.
func Open(opts Options) (*Network, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("localnet directory is required")
	}
	if len(opts.Providers) == 0 {
		opts.Providers = DefaultProviders
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cas, err := blobstore.NewLocalCAS(filepath.Join(opts.Dir, "blobs"))
	if err != nil {
		return nil, fmt.Errorf("open blob tree: %w", err)
	}

	n := &Network{
		opts:      opts,
		cas:       cas,
		logger:    opts.Logger.With("component", "localnet"),
		objects:   map[string]string{},
		corrupted: map[string]bool{},
		failReads: map[string]int{},
		state: state{
			Genesis:     opts.Now().UTC(),
			EpochOffset: opts.StartEpoch,
			Blobs:       map[string]*blobEntry{},
			Down:        map[string]bool{},
		},
	}
	if opts.Persist {
		if err := n.load(); err != nil {
			return nil, err
		}
	}
	for id, entry := range n.state.Blobs {
		n.objects[entry.ObjectID] = id
	}
	return n, nil
}

// GetSystemEpoch returns the current epoch.
func (n *Network) GetSystemEpoch(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epochLocked(), nil
}

// GetObjectState resolves a blob object by object id or blob id.
func (n *Network) GetObjectState(ctx context.Context, id string) (network.ObjectState, error) {
	if err := ctx.Err(); err != nil {
		return network.ObjectState{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.lookupLocked(id)
	if !ok {
		return network.ObjectState{}, fmt.Errorf("%w: %s", network.ErrBlobNotFound, id)
	}
	fields := map[string]string{
		"blob_id":          entry.BlobID,
		"size":             strconv.FormatInt(entry.Size, 10),
		"registered_epoch": strconv.FormatInt(entry.RegisteredEpoch, 10),
		"end_epoch":        strconv.FormatInt(entry.EndEpoch, 10),
	}
	if entry.CertifiedEpoch != nil {
		fields["certified_epoch"] = strconv.FormatInt(*entry.CertifiedEpoch, 10)
	}
	return network.ObjectState{
		ID:      entry.ObjectID,
		Type:    "blob",
		Owner:   entry.Owner,
		Version: entry.Version,
		Fields:  fields,
	}, nil
}

// SubmitStorageExtension extends a blob's end epoch. The signer signs the
// transaction payload; the digest identifies the transaction.
func (n *Network) SubmitStorageExtension(ctx context.Context, blobID string, additionalEpochs int64, signer network.Signer) (network.ExtensionReceipt, error) {
	if signer == nil {
		return network.ExtensionReceipt{}, fmt.Errorf("%w: signer is required", ErrInvalidRequest)
	}
	if additionalEpochs <= 0 {
		return network.ExtensionReceipt{}, fmt.Errorf("%w: additional epochs must be positive", ErrInvalidRequest)
	}
	digest := uuid.NewString()
	payload := []byte(fmt.Sprintf("extend:%s:%d:%s", blobID, additionalEpochs, digest))
	if _, err := signer.Sign(ctx, payload); err != nil {
		return network.ExtensionReceipt{}, fmt.Errorf("sign extension: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.state.Blobs[blobID]
	if !ok {
		return network.ExtensionReceipt{}, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	prevEnd, prevVersion := entry.EndEpoch, entry.Version
	entry.EndEpoch += additionalEpochs
	entry.Version++
	if err := n.saveLocked(); err != nil {
		entry.EndEpoch, entry.Version = prevEnd, prevVersion
		return network.ExtensionReceipt{}, err
	}
	n.logger.Info("storage extended", "blob_id", blobID, "additional_epochs", additionalEpochs, "end_epoch", entry.EndEpoch, "digest", digest, "signer", signer.Address())
	return network.ExtensionReceipt{Digest: digest, NewExpirationEpoch: entry.EndEpoch}, nil
}

// WriteBlob stores data and registers it for epochs from the current epoch.
// Rewriting known content keeps its registration and never shortens storage.
func (n *Network) WriteBlob(ctx context.Context, data []byte, signer network.Signer, attributes map[string]string, epochs int64) (network.WriteResult, error) {
	if signer == nil {
		return network.WriteResult{}, fmt.Errorf("%w: signer is required", ErrInvalidRequest)
	}
	if epochs <= 0 {
		return network.WriteResult{}, fmt.Errorf("%w: epochs must be positive", ErrInvalidRequest)
	}
	put, err := n.cas.Put(ctx, bytes.NewReader(data))
	if err != nil {
		return network.WriteResult{}, fmt.Errorf("store blob: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	epoch := n.epochLocked()
	entry, ok := n.state.Blobs[put.BlobID]
	if !ok {
		entry = &blobEntry{
			BlobID:          put.BlobID,
			ObjectID:        objectID(put.BlobID, signer.Address()),
			Owner:           signer.Address(),
			Size:            put.SizeBytes,
			RegisteredEpoch: epoch,
			EndEpoch:        epoch + epochs,
			WrittenAt:       n.opts.Now().UTC(),
		}
		if n.opts.CertifyDelay == 0 {
			entry.CertifiedEpoch = models.Epoch(epoch)
		}
		n.state.Blobs[put.BlobID] = entry
		n.objects[entry.ObjectID] = put.BlobID
	} else if end := epoch + epochs; end > entry.EndEpoch {
		entry.EndEpoch = end
	}
	if len(attributes) > 0 {
		entry.Attributes = models.CloneAttributes(attributes)
	}
	entry.Version++
	delete(n.corrupted, put.BlobID)
	if err := n.saveLocked(); err != nil {
		return network.WriteResult{}, err
	}

	n.logger.Debug("blob written", "blob_id", put.BlobID, "size", put.SizeBytes, "registered_epoch", entry.RegisteredEpoch, "end_epoch", entry.EndEpoch)
	return network.WriteResult{
		BlobID:          put.BlobID,
		ObjectID:        entry.ObjectID,
		RegisteredEpoch: entry.RegisteredEpoch,
		EndEpoch:        entry.EndEpoch,
	}, nil
}

// ReadBlob returns blob content. Expired blobs are reported as not found.
func (n *Network) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	n.mu.Lock()
	entry, ok := n.state.Blobs[blobID]
	if !ok || entry.EndEpoch < n.epochLocked() {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	if n.failReads[blobID] > 0 {
		n.failReads[blobID]--
		n.mu.Unlock()
		return nil, fmt.Errorf("read %s: %w", blobID, ErrUnavailable)
	}
	corrupted := n.corrupted[blobID]
	n.mu.Unlock()

	rc, err := n.cas.Open(ctx, blobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
		}
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", blobID, err)
	}
	if corrupted && len(data) > 0 {
		data[0] ^= 0xff
	}
	return data, nil
}

// GetBlobInfo returns registration and certification state.
func (n *Network) GetBlobInfo(ctx context.Context, blobID string) (models.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.BlobInfo{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.state.Blobs[blobID]
	if !ok {
		return models.BlobInfo{}, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	n.maybeCertifyLocked(entry)

	info := models.BlobInfo{
		BlobID:          entry.BlobID,
		ObjectID:        entry.ObjectID,
		Size:            entry.Size,
		RegisteredEpoch: entry.RegisteredEpoch,
		EndEpoch:        entry.EndEpoch,
		Attributes:      models.CloneAttributes(entry.Attributes),
	}
	if entry.CertifiedEpoch != nil {
		info.CertifiedEpoch = models.Epoch(*entry.CertifiedEpoch)
	}
	return info, nil
}

// GetBlobMetadata returns the blob's attributes.
func (n *Network) GetBlobMetadata(ctx context.Context, blobID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.state.Blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	attrs := models.CloneAttributes(entry.Attributes)
	if attrs == nil {
		attrs = map[string]string{}
	}
	return attrs, nil
}

// GetStorageProviders lists the providers currently serving the blob.
func (n *Network) GetStorageProviders(ctx context.Context, blobID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.state.Blobs[blobID]; !ok {
		return nil, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	up := make([]string, 0, len(n.opts.Providers))
	for _, name := range n.opts.Providers {
		if !n.state.Down[name] {
			up = append(up, name)
		}
	}
	return up, nil
}

// VerifyProofOfAvailability passes for certified blobs while at least two
// thirds of providers are up.
func (n *Network) VerifyProofOfAvailability(ctx context.Context, blobID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.state.Blobs[blobID]
	if !ok {
		return false, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	n.maybeCertifyLocked(entry)
	if entry.CertifiedEpoch == nil || entry.EndEpoch < n.epochLocked() {
		return false, nil
	}
	up := 0
	for _, name := range n.opts.Providers {
		if !n.state.Down[name] {
			up++
		}
	}
	return up*3 >= len(n.opts.Providers)*2, nil
}

// Certify marks a blob certified at the current epoch. Already certified
// blobs keep their original epoch.
func (n *Network) Certify(blobID string) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.state.Blobs[blobID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", network.ErrBlobNotFound, blobID)
	}
	if entry.CertifiedEpoch == nil {
		entry.CertifiedEpoch = models.Epoch(n.epochLocked())
		entry.Version++
		if err := n.saveLocked(); err != nil {
			return 0, err
		}
	}
	return *entry.CertifiedEpoch, nil
}

// AdvanceEpoch moves the epoch forward by delta and returns the new epoch.
func (n *Network) AdvanceEpoch(delta int64) (int64, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%w: epochs only move forward", ErrInvalidRequest)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.EpochOffset += delta
	if err := n.saveLocked(); err != nil {
		return 0, err
	}
	return n.epochLocked(), nil
}

// SetProviderDown marks a provider as down or back up.
func (n *Network) SetProviderDown(name string, down bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	known := false
	for _, p := range n.opts.Providers {
		if p == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if down {
		n.state.Down[name] = true
	} else {
		delete(n.state.Down, name)
	}
	return n.saveLocked()
}

// Providers returns every configured provider name.
func (n *Network) Providers() []string {
	return append([]string(nil), n.opts.Providers...)
}

// Corrupt makes reads of blobID return altered content until it is rewritten.
func (n *Network) Corrupt(blobID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.corrupted[blobID] = true
}

// FailNextReads makes the next count reads of blobID fail with ErrUnavailable.
func (n *Network) FailNextReads(blobID string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failReads[blobID] = count
}

// BlobIDs returns known blob ids in sorted order.
func (n *Network) BlobIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.state.Blobs))
	for id := range n.state.Blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (n *Network) epochLocked() int64 {
	epoch := n.state.EpochOffset
	if n.opts.EpochDuration > 0 {
		if elapsed := n.opts.Now().Sub(n.state.Genesis); elapsed > 0 {
			epoch += int64(elapsed / n.opts.EpochDuration)
		}
	}
	return epoch
}

func (n *Network) maybeCertifyLocked(entry *blobEntry) {
	if entry.CertifiedEpoch != nil || n.opts.CertifyDelay < 0 {
		return
	}
	if n.opts.Now().Sub(entry.WrittenAt) < n.opts.CertifyDelay {
		return
	}
	entry.CertifiedEpoch = models.Epoch(n.epochLocked())
	entry.Version++
	if err := n.saveLocked(); err != nil {
		n.logger.Warn("persist certification failed", "blob_id", entry.BlobID, "error", err)
	}
}

func (n *Network) lookupLocked(id string) (*blobEntry, bool) {
	if entry, ok := n.state.Blobs[id]; ok {
		return entry, true
	}
	if blobID, ok := n.objects[id]; ok {
		entry, ok := n.state.Blobs[blobID]
		return entry, ok
	}
	return nil, false
}

func (n *Network) statePath() string {
	return filepath.Join(n.opts.Dir, stateFileName)
}

func (n *Network) load() error {
	data, err := os.ReadFile(n.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return n.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("read localnet state: %w", err)
	}
	var loaded state
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse localnet state: %w", err)
	}
	if loaded.Blobs == nil {
		loaded.Blobs = map[string]*blobEntry{}
	}
	if loaded.Down == nil {
		loaded.Down = map[string]bool{}
	}
	n.state = loaded
	return nil
}

func (n *Network) saveLocked() error {
	if !n.opts.Persist {
		return nil
	}
	data, err := json.MarshalIndent(n.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode localnet state: %w", err)
	}
	tmp := n.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write localnet state: %w", err)
	}
	if err := os.Rename(tmp, n.statePath()); err != nil {
		return fmt.Errorf("write localnet state: %w", err)
	}
	return nil
}

func objectID(blobID, owner string) string {
	sum := blake2b.Sum256([]byte(blobID + ":" + owner))
	return "0x" + hex.EncodeToString(sum[:])
}
