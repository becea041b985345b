package blobstore

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	idByteLength  = 12
	idHexLength   = idByteLength * 2
	idMaxAttempts = 20
)

// GenerateID returns a new 24-character hex blob id whose leading four bytes
// encode the creation second, matching the MongoDB ObjectID layout.
// It retries on collisions using the provided exists function.
func GenerateID(now time.Time, exists func(string) (bool, error)) (string, error) {
	for i := 0; i < idMaxAttempts; i++ {
		id, err := newID(now)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// ParseID normalizes and validates a blob id. Invalid ids wrap ErrInvalidID.
func ParseID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if len(id) != idHexLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	if _, err := hex.DecodeString(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// IDTime returns the creation second embedded in a valid id.
func IDTime(id string) (time.Time, error) {
	id, err := ParseID(id)
	if err != nil {
		return time.Time{}, err
	}
	raw, _ := hex.DecodeString(id[:8])
	return time.Unix(int64(binary.BigEndian.Uint32(raw)), 0).UTC(), nil
}

func newID(now time.Time) (string, error) {
	var b [idByteLength]byte
	binary.BigEndian.PutUint32(b[:4], uint32(now.Unix()))
	if _, err := rand.Read(b[4:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
