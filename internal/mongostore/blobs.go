package mongostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
	"chunkvault/internal/models"
)

// fileDoc is a GridFS files document.
type fileDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Length      int64              `bson:"length"`
	ChunkSize   int32              `bson:"chunkSize"`
	UploadDate  time.Time          `bson:"uploadDate"`
	Filename    string             `bson:"filename"`
	ContentType string             `bson:"contentType,omitempty"`
	Metadata    bson.M             `bson:"metadata,omitempty"`
	Digest      string             `bson:"digest,omitempty"`
}

// chunkDoc is a GridFS chunks document.
type chunkDoc struct {
	ID      primitive.ObjectID `bson:"_id"`
	FilesID primitive.ObjectID `bson:"files_id"`
	N       int32              `bson:"n"`
	Data    []byte             `bson:"data"`
}

type namespace struct {
	files     *mongo.Collection
	chunks    *mongo.Collection
	chunkSize int
}

var _ blobstore.Namespace = (*namespace)(nil)

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
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	return &writeSession{ns: n, oid: oid, state: blobstore.NewSessionState(id, opts, chunkSize)}, nil
}

func (n *namespace) Resolve(ctx context.Context, rawID string) (models.Blob, error) {
	oid, err := objectID(rawID)
	if err != nil {
		return models.Blob{}, err
	}
	var doc fileDoc
	err = n.files.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Blob{}, fmt.Errorf("%w: %s", blobstore.ErrNotFound, oid.Hex())
	}
	if err != nil {
		return models.Blob{}, wrapErr(err)
	}
	return doc.blob(), nil
}

func (n *namespace) OpenRead(ctx context.Context, id string) (blobstore.ChunkReader, error) {
	blob, err := n.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	oid, err := objectID(blob.ID)
	if err != nil {
		return nil, err
	}
	cursor, err := n.chunks.Find(ctx, bson.M{"files_id": oid}, options.Find().SetSort(bson.D{{Key: "n", Value: 1}}))
	if err != nil {
		return nil, wrapErr(err)
	}
	return &chunkReader{cursor: cursor, blob: blob, total: blob.ChunkCount()}, nil
}

func (n *namespace) List(ctx context.Context) ([]models.Blob, error) {
	cursor, err := n.files.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer cursor.Close(ctx)

	blobs := []models.Blob{}
	for cursor.Next(ctx) {
		var doc fileDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		blobs = append(blobs, doc.blob())
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return blobs, nil
}

// SweepOrphans removes chunk runs with no files document whose newest chunk
// was inserted before the grace period.
func (n *namespace) SweepOrphans(ctx context.Context, olderThan time.Duration) (blobstore.SweepResult, error) {
	var result blobstore.SweepResult
	cutoff := primitive.NewObjectIDFromTimestamp(time.Now().Add(-olderThan))

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$files_id"},
			{Key: "chunks", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "bytes", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$binarySize", Value: "$data"}}}}},
			{Key: "last", Value: bson.D{{Key: "$max", Value: "$_id"}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "last", Value: bson.D{{Key: "$lt", Value: cutoff}}}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: n.files.Name()},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "file"},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "file", Value: bson.D{{Key: "$size", Value: 0}}}}}},
	}

	cursor, err := n.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return result, wrapErr(err)
	}
	var orphans []struct {
		ID     primitive.ObjectID `bson:"_id"`
		Chunks int64              `bson:"chunks"`
		Bytes  int64              `bson:"bytes"`
	}
	if err := cursor.All(ctx, &orphans); err != nil {
		return result, wrapErr(err)
	}

	for _, o := range orphans {
		res, err := n.chunks.DeleteMany(ctx, bson.M{"files_id": o.ID})
		if err != nil {
			return result, wrapErr(err)
		}
		result.Sessions++
		result.DeletedChunks += res.DeletedCount
		result.ReclaimedBytes += o.Bytes
	}
	return result, nil
}

func (n *namespace) idExists(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}
	count, err := n.files.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrapErr(err)
	}
	if count > 0 {
		return true, nil
	}
	count, err = n.chunks.CountDocuments(ctx, bson.M{"files_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrapErr(err)
	}
	return count > 0, nil
}

type writeSession struct {
	ns    *namespace
	oid   primitive.ObjectID
	state *blobstore.SessionState
}

func (w *writeSession) AppendChunk(ctx context.Context, payload []byte) error {
	index, err := w.state.Admit(payload)
	if err != nil {
		return err
	}
	_, err = w.ns.chunks.InsertOne(ctx, chunkDoc{
		ID:      primitive.NewObjectID(),
		FilesID: w.oid,
		N:       int32(index),
		Data:    payload,
	})
	if err != nil {
		return wrapErr(fmt.Errorf("write chunk %d: %w", index, err))
	}
	w.state.Commit(payload)
	return nil
}

func (w *writeSession) Finalize(ctx context.Context) (models.Blob, error) {
	blob, err := w.state.Snapshot()
	if err != nil {
		return models.Blob{}, err
	}
	doc := newFileDoc(w.oid, blob)
	if _, err := w.ns.files.InsertOne(ctx, doc); err != nil {
		return models.Blob{}, wrapErr(fmt.Errorf("write files document: %w", err))
	}
	w.state.Close()
	// Mongo stores milliseconds; report what a later Resolve will return.
	blob.CreatedAt = doc.UploadDate
	return blob, nil
}

func (w *writeSession) Abort(ctx context.Context) error {
	if w.state.Closed() {
		return nil
	}
	if _, err := w.ns.chunks.DeleteMany(ctx, bson.M{"files_id": w.oid}); err != nil {
		return wrapErr(fmt.Errorf("discard chunks: %w", err))
	}
	w.state.Close()
	return nil
}

type chunkReader struct {
	cursor *mongo.Cursor
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
	if !r.cursor.Next(ctx) {
		if err := r.cursor.Err(); err != nil {
			return models.Chunk{}, wrapErr(err)
		}
		return models.Chunk{}, &chunk.IntegrityError{BlobID: r.blob.ID, Reason: fmt.Sprintf("missing chunk %d of %d", r.next, r.total)}
	}
	var doc chunkDoc
	if err := r.cursor.Decode(&doc); err != nil {
		return models.Chunk{}, err
	}
	if int(doc.N) != r.next {
		return models.Chunk{}, &chunk.IntegrityError{BlobID: r.blob.ID, Reason: fmt.Sprintf("expected chunk %d, found %d", r.next, doc.N)}
	}
	r.next++
	return models.Chunk{Index: int(doc.N), Data: doc.Data}, nil
}

func (r *chunkReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	return r.cursor.Close(ctx)
}

func objectID(raw string) (primitive.ObjectID, error) {
	id, err := blobstore.ParseID(raw)
	if err != nil {
		return primitive.NilObjectID, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", blobstore.ErrInvalidID, err)
	}
	return oid, nil
}

func newFileDoc(oid primitive.ObjectID, blob models.Blob) fileDoc {
	doc := fileDoc{
		ID:          oid,
		Length:      blob.Size,
		ChunkSize:   int32(blob.ChunkSize),
		UploadDate:  blob.CreatedAt.UTC().Truncate(time.Millisecond),
		Filename:    blob.Name,
		ContentType: blob.ContentType,
		Digest:      blob.Digest,
	}
	if len(blob.Metadata) > 0 {
		doc.Metadata = bson.M{}
		for k, v := range blob.Metadata {
			doc.Metadata[k] = v
		}
	}
	return doc
}

func (d fileDoc) blob() models.Blob {
	blob := models.Blob{
		ID:          d.ID.Hex(),
		Name:        d.Filename,
		Size:        d.Length,
		ChunkSize:   int(d.ChunkSize),
		ContentType: d.ContentType,
		Digest:      d.Digest,
		CreatedAt:   d.UploadDate.UTC(),
	}
	if len(d.Metadata) > 0 {
		blob.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			switch value := v.(type) {
			case string:
				blob.Metadata[k] = value
			default:
				blob.Metadata[k] = fmt.Sprint(value)
			}
		}
	}
	return blob
}
