package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempSibling returns a unique temporary path next to path, in the same
// directory so a later rename stays on one filesystem.
func TempSibling(path string) string {
	return fmt.Sprintf("%s.tmp-%s", path, uuid.NewString()[:8])
}

// ReplaceFile fsyncs tmp, renames it over dst and fsyncs the parent directory
// so the swap survives a crash. tmp is removed on failure.
func ReplaceFile(tmp, dst string) error {
	if err := syncFile(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	return SyncDir(filepath.Dir(dst))
}

// WriteFileAtomic writes data to a temporary sibling and swaps it into place.
// Readers observe either the previous content or the new content, never a
// partial write.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := TempSibling(path)
	if err := os.WriteFile(tmp, data, mode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	return ReplaceFile(tmp, path)
}

// SyncDir fsyncs a directory so renames inside it are durable.
func SyncDir(dir string) error {
	handle, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer handle.Close()
	if err := handle.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

func syncFile(path string) error {
	handle, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open for sync: %w", err)
	}
	if err := handle.Sync(); err != nil {
		_ = handle.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return handle.Close()
}

// CopyFileVerified streams src to dst, then re-reads dst and compares its
// size and SHA256 against the source stream. Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return verifyCopy(dst, written, srcHasher.Sum(nil))
}

func verifyCopy(dst string, size int64, sum []byte) error {
	f, err := os.Open(dst)
	if err != nil {
		return fmt.Errorf("reopen copy: %w", err)
	}
	dstHasher := sha256.New()
	read, err := io.Copy(dstHasher, f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read back copy: %w", err)
	}
	if read != size {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copy has %d bytes", size, read)
	}
	if !bytes.Equal(sum, dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
