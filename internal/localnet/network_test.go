package localnet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blobguard/internal/network"
	"blobguard/internal/verify"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T) network.Signer {
	t.Helper()
	signer, _, err := network.GenerateKeySigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	return signer
}

func openTestNetwork(t *testing.T, opts Options) *Network {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	n, err := Open(opts)
	if err != nil {
		t.Fatalf("open localnet: %v", err)
	}
	return n
}

func TestWriteReadRoundTrip(t *testing.T) {
	n := openTestNetwork(t, Options{StartEpoch: 40})
	ctx := context.Background()
	signer := testSigner(t)
	data := bytes.Repeat([]byte{0x5a}, 1024)

	res, err := n.WriteBlob(ctx, data, signer, map[string]string{"content-type": "application/octet-stream"}, 5)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.RegisteredEpoch != 40 || res.EndEpoch != 45 || res.ObjectID == "" {
		t.Fatalf("unexpected write result: %+v", res)
	}

	got, err := n.ReadBlob(ctx, res.BlobID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read returned different content")
	}

	info, err := n.GetBlobInfo(ctx, res.BlobID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !info.Certified() || *info.CertifiedEpoch != 40 || info.Size != 1024 {
		t.Fatalf("unexpected info: %+v", info)
	}

	state, err := n.GetObjectState(ctx, res.ObjectID)
	if err != nil {
		t.Fatalf("object state: %v", err)
	}
	if state.Owner != signer.Address() || state.Fields["blob_id"] != res.BlobID {
		t.Fatalf("unexpected object state: %+v", state)
	}
}

func TestUnknownBlobIsNotFound(t *testing.T) {
	n := openTestNetwork(t, Options{})
	ctx := context.Background()
	if _, err := n.ReadBlob(ctx, "missing"); !errors.Is(err, network.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound from read, got %v", err)
	}
	if _, err := n.GetBlobInfo(ctx, "missing"); !errors.Is(err, network.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound from info, got %v", err)
	}
}

func TestWriteRequiresSignerAndEpochs(t *testing.T) {
	n := openTestNetwork(t, Options{})
	ctx := context.Background()
	if _, err := n.WriteBlob(ctx, []byte("x"), nil, nil, 1); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without signer, got %v", err)
	}
	if _, err := n.WriteBlob(ctx, []byte("x"), testSigner(t), nil, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero epochs, got %v", err)
	}
}

func TestCertifyDelay(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := openTestNetwork(t, Options{CertifyDelay: time.Minute, Now: clock.Now, StartEpoch: 7})
	ctx := context.Background()

	res, err := n.WriteBlob(ctx, []byte("pending"), testSigner(t), nil, 3)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	info, _ := n.GetBlobInfo(ctx, res.BlobID)
	if info.Certified() {
		t.Fatal("blob certified before delay elapsed")
	}
	if ok, _ := n.VerifyProofOfAvailability(ctx, res.BlobID); ok {
		t.Fatal("uncertified blob must not pass proof of availability")
	}

	clock.now = clock.now.Add(time.Minute)
	info, _ = n.GetBlobInfo(ctx, res.BlobID)
	if !info.Certified() || *info.CertifiedEpoch != 7 {
		t.Fatalf("expected certification at epoch 7, got %+v", info)
	}
}

func TestManualCertification(t *testing.T) {
	n := openTestNetwork(t, Options{CertifyDelay: -1})
	ctx := context.Background()
	res, err := n.WriteBlob(ctx, []byte("manual"), testSigner(t), nil, 3)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := n.AdvanceEpoch(2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	epoch, err := n.Certify(res.BlobID)
	if err != nil {
		t.Fatalf("certify: %v", err)
	}
	if epoch != 2 {
		t.Fatalf("expected certification at epoch 2, got %d", epoch)
	}
	if _, err := n.AdvanceEpoch(1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	again, _ := n.Certify(res.BlobID)
	if again != 2 {
		t.Fatalf("certification epoch must not move, got %d", again)
	}
}

func TestProofOfAvailabilityQuorum(t *testing.T) {
	n := openTestNetwork(t, Options{})
	ctx := context.Background()
	res, err := n.WriteBlob(ctx, []byte("quorum"), testSigner(t), nil, 3)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if ok, _ := n.VerifyProofOfAvailability(ctx, res.BlobID); !ok {
		t.Fatal("expected proof with all providers up")
	}
	if err := n.SetProviderDown("node-0", true); err != nil {
		t.Fatalf("provider down: %v", err)
	}
	if ok, _ := n.VerifyProofOfAvailability(ctx, res.BlobID); !ok {
		t.Fatal("expected proof to pass with 3 of 4 providers up")
	}
	if err := n.SetProviderDown("node-1", true); err != nil {
		t.Fatalf("provider down: %v", err)
	}
	if ok, _ := n.VerifyProofOfAvailability(ctx, res.BlobID); ok {
		t.Fatal("expected proof to fail with 2 of 4 providers up")
	}
	providers, _ := n.GetStorageProviders(ctx, res.BlobID)
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers up, got %v", providers)
	}
	if err := n.SetProviderDown("node-9", true); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestStorageExtension(t *testing.T) {
	n := openTestNetwork(t, Options{StartEpoch: 10})
	ctx := context.Background()
	signer := testSigner(t)
	res, err := n.WriteBlob(ctx, []byte("extend me"), signer, nil, 3)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	receipt, err := n.SubmitStorageExtension(ctx, res.BlobID, 5, signer)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if receipt.NewExpirationEpoch != 18 || receipt.Digest == "" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if _, err := n.SubmitStorageExtension(ctx, res.BlobID, 5, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without signer, got %v", err)
	}
	if _, err := n.SubmitStorageExtension(ctx, "missing", 5, signer); !errors.Is(err, network.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestStorageExtensionRolledBackWhenSaveFails(t *testing.T) {
	dir := t.TempDir()
	n := openTestNetwork(t, Options{Dir: dir, Persist: true, StartEpoch: 10})
	ctx := context.Background()
	signer := testSigner(t)
	res, err := n.WriteBlob(ctx, []byte("extend me"), signer, nil, 3)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	// A non-empty directory at the state path makes the atomic rename fail.
	path := n.statePath()
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove state: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatalf("block state path: %v", err)
	}
	if _, err := n.SubmitStorageExtension(ctx, res.BlobID, 5, signer); err == nil {
		t.Fatalf("expected extension to fail when state cannot be saved")
	}
	info, err := n.GetBlobInfo(ctx, res.BlobID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.EndEpoch != 13 {
		t.Fatalf("failed extension must not change end epoch, got %d", info.EndEpoch)
	}

	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("unblock state path: %v", err)
	}
	receipt, err := n.SubmitStorageExtension(ctx, res.BlobID, 5, signer)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if receipt.NewExpirationEpoch != 18 {
		t.Fatalf("expected end epoch 18, got %d", receipt.NewExpirationEpoch)
	}
}

func TestExpiredBlobIsNotReadable(t *testing.T) {
	n := openTestNetwork(t, Options{})
	ctx := context.Background()
	res, err := n.WriteBlob(ctx, []byte("short lived"), testSigner(t), nil, 1)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := n.AdvanceEpoch(2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := n.ReadBlob(ctx, res.BlobID); !errors.Is(err, network.ErrBlobNotFound) {
		t.Fatalf("expected expired blob to be not found, got %v", err)
	}
}

func TestEpochFollowsWallClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := openTestNetwork(t, Options{EpochDuration: time.Hour, Now: clock.Now, StartEpoch: 3})
	clock.now = clock.now.Add(150 * time.Minute)
	epoch, err := n.GetSystemEpoch(context.Background())
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if epoch != 5 {
		t.Fatalf("expected epoch 5, got %d", epoch)
	}
}

func TestStatePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first := openTestNetwork(t, Options{Dir: dir, Persist: true, StartEpoch: 20})
	res, err := first.WriteBlob(ctx, []byte("durable"), testSigner(t), map[string]string{"k": "v"}, 4)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := first.SetProviderDown("node-3", true); err != nil {
		t.Fatalf("provider down: %v", err)
	}

	second := openTestNetwork(t, Options{Dir: dir, Persist: true, StartEpoch: 0})
	epoch, _ := second.GetSystemEpoch(ctx)
	if epoch != 20 {
		t.Fatalf("expected persisted epoch 20, got %d", epoch)
	}
	data, err := second.ReadBlob(ctx, res.BlobID)
	if err != nil || string(data) != "durable" {
		t.Fatalf("read after reopen: %q %v", data, err)
	}
	attrs, _ := second.GetBlobMetadata(ctx, res.BlobID)
	if attrs["k"] != "v" {
		t.Fatalf("expected persisted attributes, got %v", attrs)
	}
	providers, _ := second.GetStorageProviders(ctx, res.BlobID)
	if len(providers) != 3 {
		t.Fatalf("expected persisted provider state, got %v", providers)
	}
}

func TestUploadAndVerifyAgainstLocalnet(t *testing.T) {
	n := openTestNetwork(t, Options{StartEpoch: 40, CertifyDelay: -1})
	ctx := context.Background()
	logger := discardLogger()
	data := bytes.Repeat([]byte("blob"), 256)

	tracker := verify.NewCertificationTracker(n, 5*time.Millisecond, logger)
	verifier := verify.NewBlobVerifier(n, logger)
	uploader := verify.NewUploadVerifier(n, verifier, tracker, nil, logger)

	// Certify from the side once the write has registered.
	go func() {
		for i := 0; i < 200; i++ {
			for _, id := range n.BlobIDs() {
				if _, err := n.Certify(id); err == nil {
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := uploader.VerifyUpload(ctx, data, verify.UploadOptions{
		Signer:               testSigner(t),
		Epochs:               5,
		WaitForCertification: true,
		WaitTimeout:          2 * time.Second,
		MinProviders:         2,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !result.Certified || result.ExpirationEpoch != 45 || !result.PoAComplete || !result.HasMinProviders {
		t.Fatalf("unexpected upload result: %+v", result)
	}

	n.Corrupt(result.BlobID)
	_, err = verifier.VerifyBlob(ctx, result.BlobID, data, nil, verify.Options{})
	if !errors.Is(err, verify.ErrContentMismatch) {
		t.Fatalf("expected content mismatch after corruption, got %v", err)
	}
}
