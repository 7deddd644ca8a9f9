package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/core/chunker"
	"github.com/temiloluwa-oss/arkiva/internal/logger"
	"github.com/temiloluwa-oss/arkiva/internal/metrics"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

// Embedder is the slice of the embedding generator the pipeline needs.
type Embedder interface {
	EmbedChunks(ctx context.Context, texts []string) []core.EmbedOutcome
	Model() string
	Dimension() int
}

// Fetcher downloads url-kind sources.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// Config carries the pipeline's tuning knobs.
type Config struct {
	Workers     int
	QueueCap    int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration

	OcrPollInitial time.Duration
	OcrPollMax     time.Duration
	OcrPollBudget  time.Duration
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.OcrPollInitial <= 0 {
		c.OcrPollInitial = 2 * time.Second
	}
	if c.OcrPollMax <= 0 {
		c.OcrPollMax = 30 * time.Second
	}
	if c.OcrPollBudget <= 0 {
		c.OcrPollBudget = 10 * time.Minute
	}
}

// Orchestrator drives repository items through the processing state machine.
// It is the only writer of item status: every transition goes through the
// store's compare-and-swap, so duplicate or concurrent invocations for the
// same item collapse into one effective transition.
type Orchestrator struct {
	db        core.DbClient
	obj       core.ObjectClient
	extractor core.TextExtractor
	ocr       core.OcrClient
	quota     core.QuotaStore
	embedder  Embedder
	fetcher   Fetcher
	splitter  *chunker.Chunker
	cfg       Config

	jobs chan string
	log  *zap.Logger
}

func NewOrchestrator(
	db core.DbClient,
	obj core.ObjectClient,
	extractor core.TextExtractor,
	ocrClient core.OcrClient,
	quota core.QuotaStore,
	embedder Embedder,
	fetcher Fetcher,
	splitter *chunker.Chunker,
	cfg Config,
) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		db:        db,
		obj:       obj,
		extractor: extractor,
		ocr:       ocrClient,
		quota:     quota,
		embedder:  embedder,
		fetcher:   fetcher,
		splitter:  splitter,
		cfg:       cfg,
		jobs:      make(chan string, cfg.QueueCap),
		log:       logger.Named("pipeline"),
	}
}

// Start launches the worker pool. Workers drain the job queue until ctx is
// cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.cfg.Workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case itemID := <-o.jobs:
					metrics.DecItemsQueued()
					if err := o.ProcessOne(ctx, itemID); err != nil {
						o.log.Warn("item processing stopped",
							zap.String("item_id", itemID), zap.Error(err))
					}
				}
			}
		}()
	}
}

// Recover re-enqueues every item not in a terminal state. Called once at
// startup so a crash mid-pipeline resumes instead of losing items.
func (o *Orchestrator) Recover(ctx context.Context) error {
	items, err := o.db.ListUnfinishedItems(ctx)
	if err != nil {
		return fmt.Errorf("scan unfinished items: %w", err)
	}
	for _, it := range items {
		o.Enqueue(it.ID)
	}
	if len(items) > 0 {
		o.log.Info("recovered unfinished items", zap.Int("count", len(items)))
	}
	return nil
}

// Enqueue schedules an item for processing. Blocks when the queue is full.
func (o *Orchestrator) Enqueue(itemID string) {
	metrics.IncItemsQueued()
	o.jobs <- itemID
}

// ProcessOne drives a single item until it reaches a terminal state or the
// context ends. Transient failures retry at the same state with backoff;
// exhausting the attempt budget, or any permanent failure, moves the item to
// failed. The item is reloaded each round so a soft-delete or a concurrent
// transition is picked up immediately.
func (o *Orchestrator) ProcessOne(ctx context.Context, itemID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := o.db.GetItemByID(ctx, itemID)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load item: %w", err)
		}
		if item.Deleted() {
			return nil
		}
		if item.Status.Terminal() {
			return nil
		}

		stepStart := time.Now()
		stepErr := o.Advance(ctx, item)
		metrics.ObserveStage(string(item.Status), time.Since(stepStart))

		if stepErr == nil {
			continue
		}
		if errors.Is(stepErr, core.ErrGone) || errors.Is(stepErr, context.Canceled) {
			return nil
		}

		switch Classify(stepErr) {
		case ClassPermanent:
			o.fail(ctx, item, stepErr.Error())
			return nil
		case ClassQuota:
			o.fail(ctx, item, fmt.Sprintf("ocr quota exceeded: %v", stepErr))
			return nil
		default:
			attempts, aerr := o.db.BumpItemAttempt(ctx, item.ID)
			if aerr != nil {
				return fmt.Errorf("bump attempts: %w", aerr)
			}
			if attempts >= o.cfg.MaxAttempts {
				o.fail(ctx, item, fmt.Sprintf("gave up after %d attempts: %v", attempts, stepErr))
				return nil
			}
			o.log.Warn("transient failure, retrying",
				zap.String("item_id", item.ID),
				zap.String("status", string(item.Status)),
				zap.Int("attempt", attempts),
				zap.Error(stepErr))
			if err := sleep(ctx, backoffDelay(attempts, o.cfg.RetryBase, o.cfg.RetryMax)); err != nil {
				return err
			}
		}
	}
}

// Advance performs exactly one state transition for the item. Safe to invoke
// twice for the same state: the compare-and-swap means a lost race is a
// no-op, and completed steps are never redone.
func (o *Orchestrator) Advance(ctx context.Context, item *models.RepositoryItem) error {
	switch item.Status {
	case models.StatusPending:
		return o.stepPending(ctx, item)
	case models.StatusExtracting:
		return o.stepExtracting(ctx, item)
	case models.StatusAwaitingOCR:
		return o.stepAwaitingOCR(ctx, item)
	case models.StatusChunking:
		return o.stepChunking(ctx, item)
	case models.StatusEmbedding:
		return o.stepEmbedding(ctx, item)
	default:
		return nil
	}
}

func (o *Orchestrator) stepPending(ctx context.Context, item *models.RepositoryItem) error {
	next := models.StatusExtracting
	if item.Kind == models.KindText {
		next = models.StatusChunking
	}
	_, err := o.db.TransitionItem(ctx, item.ID, models.StatusPending, next, "")
	return err
}

func (o *Orchestrator) stepExtracting(ctx context.Context, item *models.RepositoryItem) error {
	data, contentType, err := o.loadSource(ctx, item)
	if err != nil {
		return err
	}

	text, err := o.extractor.Extract(ctx, data, contentType)
	if errors.Is(err, core.ErrNeedsOCR) {
		return o.submitOCR(ctx, item)
	}
	if err != nil {
		return Permanent("extraction failed: %v", err)
	}

	if err := o.db.SetExtractedText(ctx, item.ID, text); err != nil {
		return err
	}
	_, err = o.db.TransitionItem(ctx, item.ID, models.StatusExtracting, models.StatusChunking, "")
	return err
}

func (o *Orchestrator) loadSource(ctx context.Context, item *models.RepositoryItem) ([]byte, string, error) {
	switch item.Kind {
	case models.KindDocument:
		data, err := o.obj.GetFile(ctx, item.Source)
		if err != nil {
			return nil, "", fmt.Errorf("fetch blob: %w", err)
		}
		return data, item.Metadata["content_type"], nil
	case models.KindURL:
		return o.fetcher.Fetch(ctx, item.Source)
	default:
		return nil, "", Permanent("kind %q has no extractable source", item.Kind)
	}
}

func (o *Orchestrator) submitOCR(ctx context.Context, item *models.RepositoryItem) error {
	if item.Kind != models.KindDocument {
		return Permanent("no text layer and OCR is only available for uploaded documents")
	}

	used, err := o.quota.Used(ctx)
	if err != nil {
		return fmt.Errorf("read ocr quota: %w", err)
	}
	if used >= o.quota.Limit() {
		return core.ErrQuotaExceeded
	}

	jobID, err := o.ocr.StartJob(ctx, item.Source)
	if err != nil {
		return fmt.Errorf("start ocr job: %w", err)
	}
	if err := o.db.CreateOcrJob(ctx, &models.OcrJob{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		ProviderJobID: jobID,
		Status:        models.OcrSubmitted,
		SubmittedAt:   time.Now(),
	}); err != nil {
		return fmt.Errorf("record ocr job: %w", err)
	}

	_, err = o.db.TransitionItem(ctx, item.ID, models.StatusExtracting, models.StatusAwaitingOCR, "")
	return err
}

// stepAwaitingOCR polls the provider with exponential backoff until the job
// finishes or the wall-clock budget (measured from submission, so restarts
// do not extend it) runs out.
func (o *Orchestrator) stepAwaitingOCR(ctx context.Context, item *models.RepositoryItem) error {
	job, err := o.db.GetOcrJobByItem(ctx, item.ID)
	if errors.Is(err, core.ErrNotFound) {
		return Permanent("awaiting ocr but no job recorded")
	}
	if err != nil {
		return err
	}

	deadline := job.SubmittedAt.Add(o.cfg.OcrPollBudget)
	delay := o.cfg.OcrPollInitial

	for {
		res, err := o.ocr.JobStatus(ctx, job.ProviderJobID)
		if err != nil {
			return fmt.Errorf("poll ocr job: %w", err)
		}

		switch res.State {
		case core.OcrDone:
			return o.finishOCR(ctx, item, job, res)
		case core.OcrError:
			_ = o.db.UpdateOcrJob(ctx, job.ID, models.OcrFailed, 0)
			return Permanent("ocr failed: %s", res.Reason)
		}

		if time.Now().After(deadline) {
			_ = o.db.UpdateOcrJob(ctx, job.ID, models.OcrFailed, 0)
			return Permanent("ocr exceeded time budget of %s", o.cfg.OcrPollBudget)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if delay *= 2; delay > o.cfg.OcrPollMax {
			delay = o.cfg.OcrPollMax
		}
	}
}

func (o *Orchestrator) finishOCR(ctx context.Context, item *models.RepositoryItem, job *models.OcrJob, res core.OcrResult) error {
	// Idempotency: the page quota is charged exactly once per job, guarded by
	// the recorded job status.
	if job.Status != models.OcrSucceeded {
		if err := o.db.UpdateOcrJob(ctx, job.ID, models.OcrSucceeded, res.Pages); err != nil {
			return err
		}
		if _, err := o.quota.Consume(ctx, res.Pages); err != nil {
			return fmt.Errorf("consume ocr quota: %w", err)
		}
		metrics.AddOcrPages(res.Pages)
	}

	if err := o.db.SetExtractedText(ctx, item.ID, res.Text); err != nil {
		return err
	}
	_, err := o.db.TransitionItem(ctx, item.ID, models.StatusAwaitingOCR, models.StatusChunking, "")
	return err
}

func (o *Orchestrator) stepChunking(ctx context.Context, item *models.RepositoryItem) error {
	text := item.ExtractedText
	if item.Kind == models.KindText {
		text = item.Source
	}

	pieces := o.splitter.Chunk(text)

	rows := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		rows[i] = models.Chunk{
			ID:         uuid.NewString(),
			ItemID:     item.ID,
			Ordinal:    i,
			Content:    p.Text,
			TokenCount: p.Tokens,
		}
	}

	// Full-set swap: a reader never sees a mix of old and new chunks.
	if err := o.db.ReplaceChunks(ctx, item.ID, rows); err != nil {
		return err
	}

	// Zero extracted content is a successful, empty ingestion, and inline
	// text needs no embedding at all.
	next := models.StatusEmbedding
	if len(pieces) == 0 || item.Kind == models.KindText {
		next = models.StatusCompleted
	}
	ok, err := o.db.TransitionItem(ctx, item.ID, models.StatusChunking, next, "")
	if err != nil {
		return err
	}
	if ok && next == models.StatusCompleted {
		metrics.ItemFinished(string(models.StatusCompleted))
	}
	return nil
}

func (o *Orchestrator) stepEmbedding(ctx context.Context, item *models.RepositoryItem) error {
	// The repository pins its embedding space; mixing vectors from another
	// model or size would silently corrupt similarity search.
	repo, err := o.db.GetRepositoryByID(ctx, item.RepositoryID)
	if err != nil {
		return err
	}
	if repo.EmbedModel != o.embedder.Model() || repo.EmbedDim != o.embedder.Dimension() {
		return Permanent("repository is pinned to %s/%d but the configured provider is %s/%d",
			repo.EmbedModel, repo.EmbedDim, o.embedder.Model(), o.embedder.Dimension())
	}

	chunks, err := o.db.GetChunksByItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		ok, err := o.db.TransitionItem(ctx, item.ID, models.StatusEmbedding, models.StatusCompleted, "")
		if ok {
			metrics.ItemFinished(string(models.StatusCompleted))
		}
		return err
	}

	// Resume-safe: chunks that already carry a vector are not re-embedded.
	var pending []int
	var texts []string
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			pending = append(pending, i)
			texts = append(texts, chunks[i].Content)
		}
	}

	embedded := len(chunks) - len(pending)
	var firstErr error

	if len(pending) > 0 {
		outcomes := o.embedder.EmbedChunks(ctx, texts)
		for k, idx := range pending {
			out := outcomes[k]
			if out.Err != nil {
				if firstErr == nil {
					firstErr = out.Err
				}
				continue
			}
			// The owning item may have been deleted while we were embedding;
			// the guarded update refuses to resurrect it.
			if err := o.db.AttachEmbedding(ctx, chunks[idx].ID, out.Vector); err != nil {
				return err
			}
			embedded++
		}
	}

	if firstErr != nil {
		if embedded == 0 && Classify(firstErr) == ClassTransient {
			// Nothing persisted yet; let the retry policy re-run the state.
			return firstErr
		}
		// Partial success is terminal but keeps all stored work: the item
		// stays searchable by keyword, and embedded chunks by vector.
		return &PartialError{Embedded: embedded, Total: len(chunks), Cause: firstErr}
	}

	ok, err := o.db.TransitionItem(ctx, item.ID, models.StatusEmbedding, models.StatusEmbedded, "")
	if err != nil {
		return err
	}
	if ok {
		metrics.ItemFinished(string(models.StatusEmbedded))
	}
	return nil
}

// fail moves the item to failed with the classified reason. A failed item is
// a normal end state, not a system fault.
func (o *Orchestrator) fail(ctx context.Context, item *models.RepositoryItem, msg string) {
	ok, err := o.db.TransitionItem(ctx, item.ID, item.Status, models.StatusFailed, msg)
	if err != nil {
		o.log.Error("could not record failure",
			zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	if ok {
		metrics.ItemFinished(string(models.StatusFailed))
		o.log.Info("item failed",
			zap.String("item_id", item.ID),
			zap.String("reason", msg))
	}
}
