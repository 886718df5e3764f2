package boltcache

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Identity is a file's size and modification time (plus an optional content
// fingerprint) at the moment it was last parsed. Comparing identities is the
// staleness test; it never requires re-reading file content unless
// fingerprinting is enabled.
type Identity struct {
	Size      int64
	ModTimeNs int64
	Hash      uint64 // xxhash64 of content; 0 when fingerprinting is off
}

// IdentityOf stats path and returns its current identity. With fingerprint
// set, the file content is hashed as well — slower, but immune to tools that
// rewrite files preserving size and mtime.
func IdentityOf(path string, fingerprint bool) (Identity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{
		Size:      info.Size(),
		ModTimeNs: info.ModTime().UnixNano(),
	}
	if fingerprint {
		hash, err := hashFile(path)
		if err != nil {
			return Identity{}, err
		}
		id.Hash = hash
	}
	return id, nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
