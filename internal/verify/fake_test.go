package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"blobguard/internal/models"
	"blobguard/internal/network"
)

var errTransient = errors.New("connection reset")

// fakeStorage is an in-memory StorageClient with scripted failures.
type fakeStorage struct {
	mu sync.Mutex

	blobs     map[string][]byte
	infos     map[string]models.BlobInfo
	providers map[string][]string
	poa       map[string]bool

	// readScript, when non-empty, is consumed one entry per ReadBlob call.
	readScript []readStep
	reads      int

	// certifyAfterPolls sets CertifiedEpoch once GetBlobInfo has been called this many times.
	certifyAfterPolls int
	certifyEpoch      int64
	infoCalls         int
	infoErrs          int
	metaErrs          int

	writes int
}

type readStep struct {
	data []byte
	err  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		blobs:     map[string][]byte{},
		infos:     map[string]models.BlobInfo{},
		providers: map[string][]string{},
		poa:       map[string]bool{},
	}
}

func (f *fakeStorage) put(blobID string, data []byte, info models.BlobInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[blobID] = data
	info.BlobID = blobID
	info.Size = int64(len(data))
	f.infos[blobID] = info
}

func (f *fakeStorage) WriteBlob(_ context.Context, data []byte, _ network.Signer, attributes map[string]string, epochs int64) (network.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	blobID := "blob-" + string(rune('a'+f.writes-1))
	f.blobs[blobID] = append([]byte(nil), data...)
	f.infos[blobID] = models.BlobInfo{
		BlobID:          blobID,
		Size:            int64(len(data)),
		RegisteredEpoch: 40,
		EndEpoch:        40 + epochs,
		Attributes:      models.CloneAttributes(attributes),
	}
	f.providers[blobID] = []string{"p1", "p2"}
	f.poa[blobID] = true
	return network.WriteResult{BlobID: blobID, ObjectID: "0x" + blobID, RegisteredEpoch: 40, EndEpoch: 40 + epochs}, nil
}

func (f *fakeStorage) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.reads++
	if len(f.readScript) > 0 {
		step := f.readScript[0]
		f.readScript = f.readScript[1:]
		return step.data, step.err
	}
	data, ok := f.blobs[blobID]
	if !ok {
		return nil, network.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeStorage) GetBlobInfo(ctx context.Context, blobID string) (models.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return models.BlobInfo{}, err
	}
	f.infoCalls++
	if f.infoErrs > 0 {
		f.infoErrs--
		return models.BlobInfo{}, errTransient
	}
	info, ok := f.infos[blobID]
	if !ok {
		return models.BlobInfo{}, network.ErrBlobNotFound
	}
	if f.certifyAfterPolls > 0 && f.infoCalls >= f.certifyAfterPolls && info.CertifiedEpoch == nil {
		info.CertifiedEpoch = models.Epoch(f.certifyEpoch)
		f.infos[blobID] = info
	}
	return info, nil
}

func (f *fakeStorage) GetBlobMetadata(_ context.Context, blobID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErrs > 0 {
		f.metaErrs--
		return nil, errTransient
	}
	info, ok := f.infos[blobID]
	if !ok {
		return nil, network.ErrBlobNotFound
	}
	return models.CloneAttributes(info.Attributes), nil
}

func (f *fakeStorage) GetStorageProviders(_ context.Context, blobID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.providers[blobID]...), nil
}

func (f *fakeStorage) VerifyProofOfAvailability(_ context.Context, blobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poa[blobID], nil
}

func (f *fakeStorage) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeStorage) infoCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

// fakeRecords captures tracking-store writes from the upload path.
type fakeRecords struct {
	mu        sync.Mutex
	records   map[string]models.BlobRecord
	certified map[string]int64
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[string]models.BlobRecord{}, certified: map[string]int64{}}
}

func (r *fakeRecords) PutBlobRecord(_ context.Context, record *models.BlobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.BlobID] = *record
	return nil
}

func (r *fakeRecords) MarkCertified(_ context.Context, blobID string, epoch int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certified[blobID] = epoch
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
