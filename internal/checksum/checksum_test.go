package checksum

import (
	"bytes"
	"strings"
	"testing"

	"blobguard/internal/models"
)

func TestComputeKnownVectors(t *testing.T) {
	got := Compute([]byte("abc"))
	if got.SHA256 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256: %s", got.SHA256)
	}
	if !strings.HasPrefix(got.SHA512, "ddaf35a193617aba") {
		t.Fatalf("unexpected sha512: %s", got.SHA512)
	}
	if !strings.HasPrefix(got.Blake2b, "ba80a53f981c4d0d") {
		t.Fatalf("unexpected blake2b: %s", got.Blake2b)
	}
}

func TestComputeDeterministic(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("test data"),
		bytes.Repeat([]byte{0xff}, 4096),
	}
	for _, p := range payloads {
		first := Compute(p)
		second := Compute(p)
		if !first.Equal(second) {
			t.Fatalf("expected identical digests for %q: %#v vs %#v", p, first, second)
		}
	}
}

func TestComputeDetectsSingleByteChange(t *testing.T) {
	a := bytes.Repeat([]byte("test data"), 128)
	b := append([]byte(nil), a...)
	b[len(b)-1] ^= 0x01

	ca, cb := Compute(a), Compute(b)
	if ca.SHA256 == cb.SHA256 || ca.SHA512 == cb.SHA512 || ca.Blake2b == cb.Blake2b {
		t.Fatalf("expected every digest to differ: %#v vs %#v", ca, cb)
	}
}

func TestComputeReaderMatchesCompute(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 1000)
	got, n, err := ComputeReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("compute reader: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("expected %d bytes, got %d", len(data), n)
	}
	if !got.Equal(Compute(data)) {
		t.Fatalf("streaming digests differ from in-memory digests")
	}
}

func TestChecksumsMatches(t *testing.T) {
	full := Compute([]byte("hello"))

	if !full.Matches(models.Checksums{SHA256: full.SHA256}) {
		t.Fatal("expected partial expectation to match")
	}
	if full.Matches(models.Checksums{SHA256: strings.ToUpper(full.SHA256)}) {
		t.Fatal("expected hex comparison to be exact")
	}
	if full.Matches(models.Checksums{}) {
		t.Fatal("expected empty expectation to never match")
	}
	if full.Matches(models.Checksums{SHA256: full.SHA256, Blake2b: "00"}) {
		t.Fatal("expected mismatch on blake2b")
	}
}
