// Package fingerprint computes content fingerprints over the attributes the
// reconciliation engine manages. Fingerprints are BLAKE3 hashes; two
// descriptors fingerprint equal exactly when every managed attribute is
// equal. Unmanaged (omitted) attributes never contribute to the hash.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// Fields hashes an ordered list of attribute values. Each value is
// length-prefixed before hashing so that ("ab","c") and ("a","bc") produce
// distinct fingerprints.
func Fields(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		writeLenPrefixed(h, []byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Map hashes a string map with keys sorted, so the fingerprint is
// independent of iteration order.
func Map(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := blake3.New()
	for _, k := range keys {
		writeLenPrefixed(h, []byte(k))
		writeLenPrefixed(h, []byte(m[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// File hashes the byte content of a single file.
func File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Tree hashes a directory tree. File paths are sorted before hashing so the
// fingerprint is independent of directory read order; each entry
// contributes its slash-separated relative path and its content.
func Tree(root string) (string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)

	h := blake3.New()
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", err
		}
		writeLenPrefixed(h, []byte(filepath.ToSlash(rel)))

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		writeLenPrefixed(h, data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeLenPrefixed(w io.Writer, data []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	_, _ = w.Write(lenBuf[:])
	_, _ = w.Write(data)
}
