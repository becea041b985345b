package models

import "time"

// Blob is an immutable stored binary object, persisted as one files record
// plus an ordered run of chunks.
type Blob struct {
	ID          string            `json:"file_id"`
	Name        string            `json:"filename"`
	Size        int64             `json:"length"`
	ChunkSize   int               `json:"chunk_size"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Digest      string            `json:"digest,omitempty"`
	CreatedAt   time.Time         `json:"upload_date"`
}

// ChunkCount returns how many chunks a blob of this size occupies.
func (b Blob) ChunkCount() int {
	if b.Size <= 0 || b.ChunkSize <= 0 {
		return 0
	}
	size := int64(b.ChunkSize)
	return int((b.Size + size - 1) / size)
}

// Chunk is one bounded fragment of a blob payload addressed by position.
type Chunk struct {
	Index int    `json:"n"`
	Data  []byte `json:"-"`
}
