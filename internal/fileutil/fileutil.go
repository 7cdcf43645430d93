// Package fileutil provides integrity-careful file writes for audio assets.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path via a temp file and rename, so readers
// never observe a partially written asset.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// SHA256Sum returns the hex digest of the file at path.
func SHA256Sum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyWrite confirms the file at path holds exactly data by re-reading and
// comparing digests. The file is removed on mismatch.
func VerifyWrite(path string, data []byte) error {
	got, err := SHA256Sum(path)
	if err != nil {
		return err
	}
	want := sha256.Sum256(data)
	if got != hex.EncodeToString(want[:]) {
		_ = os.Remove(path)
		return fmt.Errorf("write verification failed for %s: digest mismatch", path)
	}
	return nil
}
