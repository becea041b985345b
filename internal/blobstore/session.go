package blobstore

import (
	"encoding/hex"
	"fmt"
	"hash"
	"maps"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"chunkvault/internal/models"
)

// DigestPrefix tags the digest algorithm recorded on every blob.
const DigestPrefix = "blake2b-256:"

// SessionState holds the bookkeeping every backend's write session shares:
// chunk ordering rules, running size and digest, and the closed flag.
// It is not safe for concurrent use, matching WriteSession.
type SessionState struct {
	blob      models.Blob
	next      int
	shortSeen bool
	digest    hash.Hash
	closed    bool
}

// NewSessionState starts bookkeeping for blob id.
func NewSessionState(id string, opts WriteOptions, chunkSize int) *SessionState {
	var meta map[string]string
	if len(opts.Metadata) > 0 {
		meta = maps.Clone(opts.Metadata)
	}
	return &SessionState{
		blob: models.Blob{
			ID:          id,
			Name:        strings.TrimSpace(opts.Name),
			ChunkSize:   chunkSize,
			ContentType: strings.TrimSpace(opts.ContentType),
			Metadata:    meta,
		},
		digest: NewDigest(),
	}
}

// ID returns the blob id the session writes.
func (s *SessionState) ID() string {
	return s.blob.ID
}

// Admit validates payload as the next chunk and returns its index.
func (s *SessionState) Admit(payload []byte) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty chunk", ErrChunkOrder)
	}
	if len(payload) > s.blob.ChunkSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(payload), s.blob.ChunkSize)
	}
	if s.shortSeen {
		return 0, fmt.Errorf("%w: chunk appended after final short chunk", ErrChunkOrder)
	}
	return s.next, nil
}

// Commit records a chunk the backend persisted.
func (s *SessionState) Commit(payload []byte) {
	if s.next == 0 {
		s.blob.CreatedAt = time.Now().UTC()
	}
	if len(payload) < s.blob.ChunkSize {
		s.shortSeen = true
	}
	s.next++
	s.blob.Size += int64(len(payload))
	_, _ = s.digest.Write(payload)
}

// Snapshot returns the completed blob record without closing the session,
// so a failed commit can still be aborted.
func (s *SessionState) Snapshot() (models.Blob, error) {
	if s.closed {
		return models.Blob{}, ErrSessionClosed
	}
	blob := s.blob
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}
	blob.Digest = FormatDigest(s.digest.Sum(nil))
	return blob, nil
}

// Close marks the session finalized or aborted.
func (s *SessionState) Close() {
	s.closed = true
}

// Closed reports whether the session was finalized or aborted.
func (s *SessionState) Closed() bool {
	return s.closed
}

// NewDigest returns the hash used for blob digests.
func NewDigest() hash.Hash {
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return h
}

// FormatDigest renders a digest sum the way blobs record it.
func FormatDigest(sum []byte) string {
	return DigestPrefix + hex.EncodeToString(sum)
}
