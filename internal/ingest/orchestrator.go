// Package ingest runs the ingestion pipeline: save, extract, chunk, embed,
// and record, with rollback of everything written when a step fails.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/chunking"
	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

// DefaultMinContentChars is the substantial-content threshold: extracted
// text must be longer than this to be indexed.
const DefaultMinContentChars = 100

const rollbackTimeout = 30 * time.Second

// VectorStore is the subset of the vector store gateway the pipeline needs.
type VectorStore interface {
	Upsert(ctx context.Context, fragments []vectorstore.FragmentInput) ([]string, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Extractor turns a source into text.
type Extractor interface {
	Extract(ctx context.Context, src *extract.Source) (string, error)
	Supports(filename, mediaType string) bool
}

// Request is one piece of content to ingest.
type Request struct {
	Content     []byte
	DisplayName string
	MediaHint   string
	SourceURL   string
	HTML        string
	UserID      *string
}

// Orchestrator runs ingestion requests. It is safe for concurrent use;
// requests are independent of each other.
type Orchestrator struct {
	storage    storage.Storage
	blobs      storage.BlobStore
	vectors    VectorStore
	extractor  Extractor
	docChunker *chunking.Chunker
	webChunker *chunking.Chunker
	minContent int
	renderer   Renderer
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRenderer enables IngestURL.
func WithRenderer(r Renderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// New returns an orchestrator. cfg supplies chunk parameters for files and
// web pages and the substantial-content threshold.
func New(
	st storage.Storage,
	blobs storage.BlobStore,
	vectors VectorStore,
	extractor Extractor,
	cfg *config.ChunkingConfig,
	opts ...Option,
) (*Orchestrator, error) {
	docChunker, err := chunking.NewChunker(cfg.PDF.Size, cfg.PDF.Overlap)
	if err != nil {
		return nil, fmt.Errorf("document chunking: %w", err)
	}
	webChunker, err := chunking.NewChunker(cfg.Web.Size, cfg.Web.Overlap)
	if err != nil {
		return nil, fmt.Errorf("web chunking: %w", err)
	}
	o := &Orchestrator{
		storage:    st,
		blobs:      blobs,
		vectors:    vectors,
		extractor:  extractor,
		docChunker: docChunker,
		webChunker: webChunker,
		minContent: cfg.MinContentChars,
		logger:     zap.NewNop(),
	}
	if o.minContent <= 0 {
		o.minContent = DefaultMinContentChars
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ingestion tracks what one request has written so far.
type ingestion struct {
	blobName       string
	doc            *models.Document
	vectorsWritten bool
}

// Ingest saves the content, extracts and chunks its text, embeds the chunks
// and records the result.
//
// A completed document and a failed one (no substantial text) are both
// returned without error. Any other failure removes everything written for
// the request and returns an error wrapping ErrExtractionFailed or
// ErrVectorization; no record remains.
func (o *Orchestrator) Ingest(ctx context.Context, req *Request) (*models.Document, error) {
	if len(req.Content) == 0 {
		return nil, ErrEmptyContent
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = "document"
	}
	log := o.logger.With(zap.String("filename", name))

	blobName, err := o.blobs.Save(ctx, name, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to save content: %w", err)
	}
	in := &ingestion{blobName: blobName}

	doc := &models.Document{
		ID:               uuid.New().String(),
		Filename:         blobName,
		OriginalFilename: name,
		StoragePath:      o.blobs.Path(blobName),
		FileSize:         int64(len(req.Content)),
		ContentType:      req.MediaHint,
		SourceURL:        req.SourceURL,
		UserID:           req.UserID,
		Status:           models.StatusPending,
	}
	if err := o.storage.CreateDocument(ctx, doc); err != nil {
		o.rollback(ctx, in)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}
	in.doc = doc
	log = log.With(zap.String("document_id", doc.ID))

	src := &extract.Source{
		Filename:  name,
		MediaType: req.MediaHint,
		URL:       req.SourceURL,
		Content:   req.Content,
		HTML:      req.HTML,
	}
	text, err := o.extractor.Extract(ctx, src)
	if err != nil {
		o.rollback(ctx, in)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ingestion cancelled: %w", ctxErr)
		}
		log.Warn("extraction failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	chunker := o.docChunker
	if src.IsWeb() {
		chunker = o.webChunker
	}
	chunks := chunker.Split(text)

	if utf8.RuneCountInString(strings.TrimSpace(text)) <= o.minContent || len(chunks) == 0 {
		return o.fail(ctx, in, src, log)
	}
	if err := ctx.Err(); err != nil {
		o.rollback(ctx, in)
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	inputs := make([]vectorstore.FragmentInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = vectorstore.FragmentInput{
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			Filename:   name,
			ChunkIndex: i,
			Text:       c,
			CreatedAt:  doc.CreatedAt,
		}
	}
	vectorIDs, err := o.vectors.Upsert(ctx, inputs)
	if err != nil {
		in.vectorsWritten = ctx.Err() != nil
		o.rollback(ctx, in)
		log.Error("failed to upsert fragments", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrVectorization, err)
	}
	in.vectorsWritten = true
	if len(vectorIDs) != len(chunks) {
		o.rollback(ctx, in)
		return nil, fmt.Errorf("%w: got %d vector ids for %d chunks", ErrVectorization, len(vectorIDs), len(chunks))
	}

	fragments := make([]*models.Fragment, len(chunks))
	for i, c := range chunks {
		fragments[i] = &models.Fragment{
			ID:             uuid.New().String(),
			DocumentID:     doc.ID,
			ChunkIndex:     i,
			Text:           c,
			CharacterCount: utf8.RuneCountInString(c),
			VectorID:       vectorIDs[i],
		}
	}
	if err := o.storage.CompleteDocument(ctx, doc.ID, fragments); err != nil {
		o.rollback(ctx, in)
		log.Error("failed to store fragments", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to store fragments: %w", ErrVectorization, err)
	}

	doc.Status = models.StatusCompleted
	doc.ChunksCount = len(fragments)
	log.Info("document ingested", zap.Int("chunks", len(fragments)), zap.Int("characters", utf8.RuneCountInString(text)))
	return doc, nil
}

// fail records a soft failure. The blob and the failed record are kept.
func (o *Orchestrator) fail(ctx context.Context, in *ingestion, src *extract.Source, log *zap.Logger) (*models.Document, error) {
	reason := NoContentReason
	if src.IsWeb() {
		reason = NoWebContentReason
	}
	if err := o.storage.FailDocument(ctx, in.doc.ID, reason); err != nil {
		o.rollback(ctx, in)
		return nil, fmt.Errorf("failed to record extraction result: %w", err)
	}
	in.doc.Status = models.StatusFailed
	in.doc.VectorizationError = reason
	in.doc.ChunksCount = 0
	log.Warn("no substantial text extracted", zap.String("reason", reason))
	return in.doc, nil
}

// rollback removes, in reverse order, what the request wrote. It runs on a
// context detached from ctx so cancellation does not stop the cleanup.
// Errors are logged only.
func (o *Orchestrator) rollback(ctx context.Context, in *ingestion) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	log := o.logger.With(zap.String("blob", in.blobName))
	if in.doc != nil {
		log = log.With(zap.String("document_id", in.doc.ID))
		if in.vectorsWritten {
			if err := o.vectors.DeleteDocument(ctx, in.doc.ID); err != nil {
				log.Error("rollback: failed to delete vectors", zap.Error(err))
			}
		}
		if err := o.storage.DeleteDocument(ctx, in.doc.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error("rollback: failed to delete document record", zap.Error(err))
		}
	}
	if err := o.blobs.Delete(ctx, in.blobName); err != nil {
		log.Error("rollback: failed to delete blob", zap.Error(err))
	}
	log.Info("rolled back ingestion")
}

// Delete removes a document's vectors, fragments, record and blob.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	doc, err := o.storage.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != models.StatusFailed {
		if err := o.vectors.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}
	if err := o.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := o.blobs.Delete(ctx, doc.Filename); err != nil {
		o.logger.Warn("failed to delete blob", zap.String("document_id", id), zap.String("blob", doc.Filename), zap.Error(err))
	}
	o.logger.Info("document deleted", zap.String("document_id", id))
	return nil
}
