package api

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Status    string `json:"status"`
	FileID    string `json:"file_id"`
	ChunkSize int    `json:"chunk_size"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Digest    string `json:"digest,omitempty"`
}

// FileEntry describes one finalized blob in a listing.
type FileEntry struct {
	FileID      string            `json:"file_id"`
	Filename    string            `json:"filename"`
	Length      int64             `json:"length"`
	UploadDate  string            `json:"upload_date"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListResponse is returned by GET /list.
type ListResponse struct {
	Files []FileEntry `json:"files"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	Version           string `json:"version"`
	Backend           string `json:"backend"`
	ChunkSize         int    `json:"chunk_size"`
	DefaultDatabase   string `json:"default_database"`
	DefaultCollection string `json:"default_collection"`
	MaxUploadBytes    int64  `json:"max_upload_bytes"`
	WAVEnabled        bool   `json:"wav_enabled"`
}

// Namespace selects the database and collection a request targets. Empty
// fields fall back to the server defaults.
type Namespace struct {
	DB         string
	Collection string
}

// UploadRequest carries the optional naming of an upload. The gateway
// infers the stored content type from Filename.
type UploadRequest struct {
	Filename string
	Metadata map[string]string
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	Filename    string
	ContentType string
	Size        int64
	Written     int64
}
