package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
	"chunkvault/internal/models"
)

const (
	fileColumns  = "id, filename, length, chunk_size, content_type, metadata_json, digest, upload_date"
	dbTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// namespace is the per-request handle on one collection's tables.
type namespace struct {
	db        *sql.DB
	files     string
	chunks    string
	chunkSize int
}

var _ blobstore.Namespace = (*namespace)(nil)

func newNamespace(db *sql.DB, collection string, chunkSize int) *namespace {
	return &namespace{
		db:        db,
		files:     quoteIdent(blobstore.FilesCollection(collection)),
		chunks:    quoteIdent(blobstore.ChunksCollection(collection)),
		chunkSize: chunkSize,
	}
}

// OpenWrite starts a write session under a freshly generated id.
func (n *namespace) OpenWrite(ctx context.Context, opts blobstore.WriteOptions) (blobstore.WriteSession, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = n.chunkSize
	}
	id, err := blobstore.GenerateID(time.Now(), func(id string) (bool, error) {
		return n.idExists(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &writeSession{ns: n, state: blobstore.NewSessionState(id, opts, chunkSize)}, nil
}

// Resolve returns the files record of a finalized blob.
func (n *namespace) Resolve(ctx context.Context, rawID string) (models.Blob, error) {
	id, err := blobstore.ParseID(rawID)
	if err != nil {
		return models.Blob{}, err
	}
	row := n.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM `+n.files+` WHERE id = ?`, id)
	blob, err := scanBlob(row)
	if err != nil {
		return models.Blob{}, err
	}
	if blob == nil {
		return models.Blob{}, fmt.Errorf("%w: %s", blobstore.ErrNotFound, id)
	}
	return *blob, nil
}

// OpenRead resolves id and returns a reader positioned at chunk 0.
func (n *namespace) OpenRead(ctx context.Context, id string) (blobstore.ChunkReader, error) {
	blob, err := n.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return &chunkReader{ns: n, blob: blob, total: blob.ChunkCount()}, nil
}

// List returns every finalized blob in insertion order.
func (n *namespace) List(ctx context.Context) ([]models.Blob, error) {
	rows, err := n.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM `+n.files+` ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

// SweepOrphans deletes chunks whose session never finalized and whose most
// recent chunk is older than olderThan.
func (n *namespace) SweepOrphans(ctx context.Context, olderThan time.Duration) (blobstore.SweepResult, error) {
	var result blobstore.SweepResult
	cutoff := dbFormatTime(time.Now().UTC().Add(-olderThan))

	rows, err := n.db.QueryContext(ctx, `
		SELECT c.files_id, COUNT(*), COALESCE(SUM(LENGTH(c.data)), 0)
		FROM `+n.chunks+` c
		LEFT JOIN `+n.files+` f ON f.id = c.files_id
		WHERE f.id IS NULL
		GROUP BY c.files_id
		HAVING MAX(c.created_at) < ?`, cutoff)
	if err != nil {
		return result, err
	}

	type orphan struct {
		id     string
		chunks int64
		bytes  int64
	}
	orphans := []orphan{}
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.chunks, &o.bytes); err != nil {
			_ = rows.Close()
			return result, err
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return result, err
	}
	_ = rows.Close()

	for _, o := range orphans {
		if err := n.deleteChunks(ctx, o.id); err != nil {
			return result, err
		}
		result.Sessions++
		result.DeletedChunks += o.chunks
		result.ReclaimedBytes += o.bytes
	}
	return result, nil
}

func (n *namespace) idExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := n.db.QueryRowContext(ctx, `
		SELECT 1 FROM `+n.files+` WHERE id = ?
		UNION ALL
		SELECT 1 FROM `+n.chunks+` WHERE files_id = ?
		LIMIT 1`, id, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (n *namespace) deleteChunks(ctx context.Context, id string) error {
	_, err := n.db.ExecContext(ctx, `DELETE FROM `+n.chunks+` WHERE files_id = ?`, id)
	return err
}

type writeSession struct {
	ns    *namespace
	state *blobstore.SessionState
}

func (w *writeSession) AppendChunk(ctx context.Context, payload []byte) error {
	index, err := w.state.Admit(payload)
	if err != nil {
		return err
	}
	_, err = w.ns.db.ExecContext(ctx, `INSERT INTO `+w.ns.chunks+` (files_id, n, data, created_at) VALUES (?, ?, ?, ?)`,
		w.state.ID(), index, payload, dbFormatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("write chunk %d: %w", index, err)
	}
	w.state.Commit(payload)
	return nil
}

func (w *writeSession) Finalize(ctx context.Context) (models.Blob, error) {
	blob, err := w.state.Snapshot()
	if err != nil {
		return models.Blob{}, err
	}
	metaJSON, err := metadataToJSON(blob.Metadata)
	if err != nil {
		return models.Blob{}, err
	}
	_, err = w.ns.db.ExecContext(ctx, `
		INSERT INTO `+w.ns.files+` (id, filename, length, chunk_size, content_type, metadata_json, digest, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		blob.ID, blob.Name, blob.Size, blob.ChunkSize, nullIfEmpty(blob.ContentType), metaJSON, nullIfEmpty(blob.Digest), dbFormatTime(blob.CreatedAt))
	if err != nil {
		return models.Blob{}, fmt.Errorf("write files record: %w", err)
	}
	w.state.Close()
	return blob, nil
}

func (w *writeSession) Abort(ctx context.Context) error {
	if w.state.Closed() {
		return nil
	}
	if err := w.ns.deleteChunks(ctx, w.state.ID()); err != nil {
		return fmt.Errorf("discard chunks: %w", err)
	}
	w.state.Close()
	return nil
}

// chunkReader fetches one chunk row per Next, so no connection is held
// between calls and an abandoned reader leaks nothing.
type chunkReader struct {
	ns     *namespace
	blob   models.Blob
	total  int
	next   int
	closed bool
}

func (r *chunkReader) Next(ctx context.Context) (models.Chunk, error) {
	if r.closed {
		return models.Chunk{}, fmt.Errorf("chunk reader is closed")
	}
	if r.next >= r.total {
		return models.Chunk{}, io.EOF
	}
	var data []byte
	err := r.ns.db.QueryRowContext(ctx, `SELECT data FROM `+r.ns.chunks+` WHERE files_id = ? AND n = ?`, r.blob.ID, r.next).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chunk{}, &chunk.IntegrityError{BlobID: r.blob.ID, Reason: fmt.Sprintf("missing chunk %d of %d", r.next, r.total)}
	}
	if err != nil {
		return models.Chunk{}, err
	}
	c := models.Chunk{Index: r.next, Data: data}
	r.next++
	return c, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var contentType, metaJSON, digest sql.NullString
	var uploadDate string

	err := scanner.Scan(&blob.ID, &blob.Name, &blob.Size, &blob.ChunkSize, &contentType, &metaJSON, &digest, &uploadDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	blob.ContentType = contentType.String
	blob.Digest = digest.String
	parsed, err := dbParseTime(uploadDate)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsed

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &blob.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata_json: %w", err)
		}
	}
	return &blob, nil
}

func metadataToJSON(meta map[string]string) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata_json: %w", err)
	}
	return string(data), nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t, nil
}
