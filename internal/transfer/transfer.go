// Package transfer streams payloads between io.Reader/io.Writer endpoints
// and a blob store namespace one chunk at a time.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
	"chunkvault/internal/models"
)

// ErrEmptyPayload is returned by Upload when RejectEmpty is set and the
// source carried no bytes.
var ErrEmptyPayload = errors.New("empty payload")

// ErrSourceRead wraps failures reading the upload source, as opposed to
// failures writing to the store.
var ErrSourceRead = errors.New("read upload body")

// UploadOptions describes the blob an upload creates.
type UploadOptions struct {
	Name        string
	ContentType string
	Metadata    map[string]string
	ChunkSize   int
	RejectEmpty bool
}

// Upload reads src one chunk at a time, appending each chunk as soon as it
// is read. The blob size is whatever src yields. On any failure the session
// is aborted and no blob becomes resolvable.
func Upload(ctx context.Context, ns blobstore.Namespace, src io.Reader, opts UploadOptions) (models.Blob, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	splitter, err := chunk.NewSplitter(src, chunkSize)
	if err != nil {
		return models.Blob{}, err
	}

	session, err := ns.OpenWrite(ctx, blobstore.WriteOptions{
		Name:        opts.Name,
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
		ChunkSize:   chunkSize,
	})
	if err != nil {
		return models.Blob{}, err
	}

	fail := func(cause error) (models.Blob, error) {
		if abortErr := session.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			return models.Blob{}, errors.Join(cause, fmt.Errorf("abort upload: %w", abortErr))
		}
		return models.Blob{}, cause
	}

	appended := 0
	for splitter.Scan() {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := session.AppendChunk(ctx, splitter.Bytes()); err != nil {
			return fail(err)
		}
		appended++
	}
	if err := splitter.Err(); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSourceRead, err))
	}
	if opts.RejectEmpty && appended == 0 {
		return fail(ErrEmptyPayload)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	blob, err := session.Finalize(ctx)
	if err != nil {
		return fail(err)
	}
	return blob, nil
}

// Download is an opened blob ready to be streamed.
type Download struct {
	Blob   models.Blob
	ctx    context.Context
	reader blobstore.ChunkReader
}

// OpenDownload resolves id and opens its chunk reader so lookup failures
// surface before any byte is written to the client.
func OpenDownload(ctx context.Context, ns blobstore.Namespace, id string) (*Download, error) {
	blob, err := ns.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	reader, err := ns.OpenRead(ctx, blob.ID)
	if err != nil {
		return nil, err
	}
	return &Download{Blob: blob, ctx: ctx, reader: reader}, nil
}

type flusher interface {
	Flush()
}

// WriteTo writes each chunk to w as it is read. It stops with an
// IntegrityError as soon as the chunk stream disagrees with the recorded
// size or ordering.
func (d *Download) WriteTo(w io.Writer) (int64, error) {
	seq := chunk.Sequencer{BlobID: d.Blob.ID}
	f, canFlush := w.(flusher)
	var written int64

	for {
		if err := d.ctx.Err(); err != nil {
			return written, err
		}
		c, err := d.reader.Next(d.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, err
		}
		if err := seq.Check(c); err != nil {
			return written, err
		}
		if seq.Bytes() > d.Blob.Size {
			return written, &chunk.IntegrityError{
				BlobID: d.Blob.ID,
				Reason: fmt.Sprintf("chunks exceed recorded length %d", d.Blob.Size),
			}
		}
		n, err := w.Write(c.Data)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if canFlush {
			f.Flush()
		}
	}

	if seq.Bytes() != d.Blob.Size {
		return written, &chunk.IntegrityError{
			BlobID: d.Blob.ID,
			Reason: fmt.Sprintf("chunks total %d bytes, recorded length %d", seq.Bytes(), d.Blob.Size),
		}
	}
	return written, nil
}

// Close releases the chunk reader.
func (d *Download) Close() error {
	if d == nil || d.reader == nil {
		return nil
	}
	return d.reader.Close()
}

// VerifyResult reports what a replay of a blob found.
type VerifyResult struct {
	Blob           models.Blob `json:"blob"`
	Chunks         int         `json:"chunks"`
	Bytes          int64       `json:"bytes"`
	Digest         string      `json:"digest"`
	DigestRecorded bool        `json:"digest_recorded"`
}

// Verify replays blob id, recomputing its length and digest. A mismatch
// with the files record is returned as an IntegrityError.
func Verify(ctx context.Context, ns blobstore.Namespace, id string) (VerifyResult, error) {
	download, err := OpenDownload(ctx, ns, id)
	if err != nil {
		return VerifyResult{}, err
	}
	defer download.Close()

	h := blobstore.NewDigest()
	counter := &countingWriter{w: h}
	if _, err := download.WriteTo(counter); err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Blob:           download.Blob,
		Chunks:         counter.writes,
		Bytes:          counter.n,
		Digest:         blobstore.FormatDigest(h.Sum(nil)),
		DigestRecorded: download.Blob.Digest != "",
	}
	if result.DigestRecorded && result.Digest != download.Blob.Digest {
		return result, &chunk.IntegrityError{
			BlobID: download.Blob.ID,
			Reason: fmt.Sprintf("digest %s does not match recorded %s", result.Digest, download.Blob.Digest),
		}
	}
	return result, nil
}

type countingWriter struct {
	w      io.Writer
	n      int64
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.writes++
	return n, err
}
