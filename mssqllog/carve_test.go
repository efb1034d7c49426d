package mssqllog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTempLDF(t *testing.T, data []byte) *FileReader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ldf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing temp LDF: %v", err)
	}
	reader, err := OpenFileReader(path)
	if err != nil {
		t.Fatalf("OpenFileReader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })
	return reader
}

// plantDMLSignature writes the byte pattern scanRange looks for at off:
// a zeroed prefix, the DML fixedlength discriminator (0x3E, 0x00), and the
// op byte at +0x16.
func plantDMLSignature(buf []byte, off int, op uint8) {
	buf[off+2] = 0x3E
	buf[off+3] = 0x00
	buf[off+0x16] = op
}

func TestCarveFindsAlignedSignature(t *testing.T) {
	buf := make([]byte, 4096)
	const plantOffset = 256 // 4-byte aligned
	plantDMLSignature(buf, plantOffset, OpInsertRows)

	reader := writeTempLDF(t, buf)
	hits, err := Carve(context.Background(), reader, 2)
	if err != nil {
		t.Fatalf("Carve: %v", err)
	}

	found := false
	for _, h := range hits {
		if h.Offset == int64(plantOffset) {
			found = true
		}
	}
	if !found {
		t.Errorf("Carve did not find signature planted at aligned offset %d; hits=%v", plantOffset, hits)
	}
}

func TestCarveMissesMisalignedSignature(t *testing.T) {
	buf := make([]byte, 4096)
	const plantOffset = 257 // not 4-byte aligned
	plantDMLSignature(buf, plantOffset, OpInsertRows)

	reader := writeTempLDF(t, buf)
	hits, err := Carve(context.Background(), reader, 2)
	if err != nil {
		t.Fatalf("Carve: %v", err)
	}

	for _, h := range hits {
		if h.Offset == int64(plantOffset) {
			t.Errorf("Carve found a signature at a non-4-byte-aligned offset %d; scanning must stay on the 4-byte grid", plantOffset)
		}
	}
}

func TestCarveWorkerChunksStay4ByteAligned(t *testing.T) {
	buf := make([]byte, 10007) // deliberately not a multiple of anything tidy
	reader := writeTempLDF(t, buf)

	if _, err := Carve(context.Background(), reader, 3); err != nil {
		t.Fatalf("Carve: %v", err)
	}
	// Plant a signature near the middle, wherever worker boundaries land,
	// and confirm it is still found regardless of how many workers ran.
	const plantOffset = 4096
	plantDMLSignature(buf, plantOffset, OpDeleteRows)
	reader2 := writeTempLDF(t, buf)
	hits, err := Carve(context.Background(), reader2, 3)
	if err != nil {
		t.Fatalf("Carve: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Offset == int64(plantOffset) {
			found = true
		}
	}
	if !found {
		t.Error("Carve missed an aligned signature planted inside a worker's chunk")
	}
}
