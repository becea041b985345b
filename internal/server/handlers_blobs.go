package server

import (
	"errors"
	"fmt"
	"maps"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"chunkvault/internal/api"
	"chunkvault/internal/audio"
	"chunkvault/internal/models"
	"chunkvault/internal/transfer"
)

const (
	metadataPrefix     = "meta."
	defaultContentType = "application/octet-stream"
	wavContentType     = "audio/wav"
	generatedNameTime  = "20060102_150405"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	if r.ContentLength > s.opts.MaxUploadBytes {
		s.writeErrorReq(w, r, http.StatusRequestEntityTooLarge,
			tooLarge(fmt.Errorf("request body exceeds %d bytes", s.opts.MaxUploadBytes)))
		return
	}

	metadata, err := s.uploadMetadata(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	ns, ok := s.namespace(w, r)
	if !ok {
		return
	}

	name := s.uploadFilename(r)
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	blob, err := transfer.Upload(r.Context(), ns, body, transfer.UploadOptions{
		Name:        name,
		ContentType: contentTypeFor(name),
		Metadata:    metadata,
		ChunkSize:   s.opts.ChunkSize,
		RejectEmpty: s.opts.RejectEmpty,
	})
	if err != nil {
		s.writeBlobError(w, r, err, "")
		return
	}

	s.log().Info("blob stored", "file_id", blob.ID, "filename", blob.Name, "size", blob.Size, "chunks", blob.ChunkCount())
	s.writeJSON(w, http.StatusOK, api.UploadResponse{
		Status:    "success",
		FileID:    blob.ID,
		ChunkSize: blob.ChunkSize,
		Filename:  blob.Name,
		Size:      blob.Size,
		Digest:    blob.Digest,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("file_id"))
	if id == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(errors.New("No file_id provided"), ErrCodeMissingRequired))
		return
	}

	wav, err := s.wantWAV(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	ns, ok := s.namespace(w, r)
	if !ok {
		return
	}

	download, err := transfer.OpenDownload(r.Context(), ns, id)
	if err != nil {
		s.writeBlobError(w, r, err, id)
		return
	}
	defer download.Close()

	blob := download.Blob
	filename := blob.Name
	if filename == "" {
		filename = blob.ID
	}
	contentType := blobContentType(blob)
	length := blob.Size

	var header []byte
	if wav != nil {
		header, err = audio.Header(*wav, blob.Size)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(err))
			return
		}
		filename = audio.Filename(filename)
		contentType = wavContentType
		length += int64(len(header))
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusOK)

	if len(header) > 0 {
		if _, err := w.Write(header); err != nil {
			s.log().Debug("download aborted", "file_id", blob.ID, "error", err)
			return
		}
	}
	written, err := download.WriteTo(w)
	if err != nil {
		// Headers are already sent, so the short body is the only signal
		// the client gets.
		s.log().Error("download interrupted",
			"file_id", blob.ID,
			"written", written,
			"size", blob.Size,
			"error", err,
			"request_id", requestID(r),
		)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ns, ok := s.namespace(w, r)
	if !ok {
		return
	}

	blobs, err := ns.List(r.Context())
	if err != nil {
		s.writeBlobError(w, r, err, "")
		return
	}

	files := make([]api.FileEntry, 0, len(blobs))
	for _, blob := range blobs {
		files = append(files, api.FileEntry{
			FileID:      blob.ID,
			Filename:    blob.Name,
			Length:      blob.Size,
			UploadDate:  blob.CreatedAt.UTC().Format(time.RFC3339Nano),
			ContentType: blob.ContentType,
			Metadata:    blob.Metadata,
		})
	}
	s.writeJSON(w, http.StatusOK, api.ListResponse{Files: files})
}

// uploadFilename returns the sanitized filename query value, or a
// timestamped default.
func (s *Server) uploadFilename(r *http.Request) string {
	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name != "" {
		name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	}
	if name == "" || name == "." || name == "/" || name == ".." {
		name = s.opts.FilenamePrefix + s.now().Format(generatedNameTime) + s.opts.FilenameExtension
	}
	return name
}

func (s *Server) uploadMetadata(r *http.Request) (map[string]string, error) {
	metadata := maps.Clone(s.opts.DefaultMetadata)
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, metadataPrefix) || len(values) == 0 {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(key, metadataPrefix))
		if name == "" {
			return nil, badRequestCode(fmt.Errorf("metadata key is required in %q", key), ErrCodeInvalidQuery)
		}
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata[name] = values[len(values)-1]
	}
	return metadata, nil
}

func (s *Server) wantWAV(r *http.Request) (*audio.Format, error) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "raw":
		return nil, nil
	case "wav":
		if s.opts.WAV == nil {
			return nil, badRequestCode(errors.New("wav downloads are not enabled"), ErrCodeInvalidFormat)
		}
		return s.opts.WAV, nil
	default:
		return nil, badRequestCode(fmt.Errorf("unsupported format: %s", format), ErrCodeInvalidFormat)
	}
}

// audioTypes maps audio file extensions to media types. Raw PCM has no
// registered type, so .raw and .pcm names stay untyped.
var audioTypes = map[string]string{
	".wav":  wavContentType,
	".wave": wavContentType,
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".webm": "audio/webm",
}

// contentTypeFor infers a media type from the name's extension alone and
// returns "" when the extension is not a known audio type.
func contentTypeFor(name string) string {
	return audioTypes[strings.ToLower(path.Ext(name))]
}

func blobContentType(blob models.Blob) string {
	if blob.ContentType != "" {
		return blob.ContentType
	}
	if byName := contentTypeFor(blob.Name); byName != "" {
		return byName
	}
	return defaultContentType
}
