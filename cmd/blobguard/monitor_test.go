package main

import (
	"strings"
	"testing"

	"blobguard/internal/checksum"
	"blobguard/internal/models"
)

func TestParseSHA256Flag(t *testing.T) {
	want := checksum.Compute([]byte("hello")).SHA256

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "lowercase", raw: want},
		{name: "uppercase", raw: strings.ToUpper(want)},
		{name: "padded", raw: "  " + want + "\n"},
		{name: "short", raw: want[:10], wantErr: true},
		{name: "not hex", raw: strings.Repeat("zz", 32), wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseSHA256Flag(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
			if !checksum.Compute([]byte("hello")).Matches(models.Checksums{SHA256: got}) {
				t.Fatalf("normalized digest must match computed checksums")
			}
		})
	}
}
