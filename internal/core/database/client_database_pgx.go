package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/temiloluwa-oss/arkiva/internal/config"
	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: sqlDB}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// nullVector tolerates NULL embedding columns, which pgvector.Vector does not.
type nullVector struct {
	vec   pgvector.Vector
	valid bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.vec.Scan(src)
}

func (n *nullVector) slice() []float32 {
	if !n.valid {
		return nil
	}
	return n.vec.Slice()
}

func marshalMeta(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func unmarshalMeta(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Repositories

func (c *DatabaseClient) CreateRepository(ctx context.Context, repo *models.Repository) error {
	if repo == nil {
		return errors.New("nil repository")
	}
	const q = `
		INSERT INTO repositories (id, user_id, name, embed_model, embed_dim, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, repo.ID, repo.UserID, repo.Name, repo.EmbedModel, repo.EmbedDim)
	return err
}

func (c *DatabaseClient) GetRepositoryByID(ctx context.Context, id string) (*models.Repository, error) {
	const q = `
		SELECT id, user_id, name, embed_model, embed_dim, created_at, updated_at
		FROM repositories WHERE id = $1
	`
	var r models.Repository
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.UserID, &r.Name, &r.EmbedModel, &r.EmbedDim, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *DatabaseClient) ListRepositoriesByUser(ctx context.Context, userID string) ([]models.Repository, error) {
	const q = `
		SELECT id, user_id, name, embed_model, embed_dim, created_at, updated_at
		FROM repositories
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Repository
	for rows.Next() {
		var r models.Repository
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.EmbedModel, &r.EmbedDim, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items

const itemColumns = `id, repository_id, kind, name, source, metadata, status, error,
	attempt_count, COALESCE(extracted_text, ''), created_at, updated_at, deleted_at`

func scanItem(row interface{ Scan(...any) error }) (*models.RepositoryItem, error) {
	var (
		it   models.RepositoryItem
		meta []byte
	)
	err := row.Scan(
		&it.ID, &it.RepositoryID, &it.Kind, &it.Name, &it.Source, &meta, &it.Status,
		&it.Error, &it.AttemptCount, &it.ExtractedText, &it.CreatedAt, &it.UpdatedAt, &it.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Metadata = unmarshalMeta(meta)
	return &it, nil
}

func (c *DatabaseClient) CreateItem(ctx context.Context, item *models.RepositoryItem) error {
	if item == nil {
		return errors.New("nil item")
	}
	meta, err := marshalMeta(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
		INSERT INTO repository_items
			(id, repository_id, kind, name, source, metadata, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q,
		item.ID, item.RepositoryID, item.Kind, item.Name, item.Source, meta, item.Status)
	return err
}

func (c *DatabaseClient) GetItemByID(ctx context.Context, id string) (*models.RepositoryItem, error) {
	q := `SELECT ` + itemColumns + ` FROM repository_items WHERE id = $1`
	it, err := scanItem(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (c *DatabaseClient) ListItemsByRepository(ctx context.Context, repositoryID string) ([]models.RepositoryItem, error) {
	q := `SELECT ` + itemColumns + `
		FROM repository_items
		WHERE repository_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RepositoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ListUnfinishedItems(ctx context.Context) ([]models.RepositoryItem, error) {
	q := `SELECT ` + itemColumns + `
		FROM repository_items
		WHERE status NOT IN ('embedded', 'completed', 'failed') AND deleted_at IS NULL
		ORDER BY created_at ASC`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RepositoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SoftDeleteItem(ctx context.Context, id string) error {
	const q = `
		UPDATE repository_items
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// TransitionItem is the status compare-and-swap: the update applies only if
// the persisted status still matches the expected pre-state and the item is
// still live. All status writes in the system go through here.
func (c *DatabaseClient) TransitionItem(ctx context.Context, id string, from, to models.ItemStatus, errMsg string) (bool, error) {
	// Entering a new working state resets the retry budget; terminal states
	// keep the final count for inspection.
	const q = `
		UPDATE repository_items
		SET status = $3, error = $4,
		    attempt_count = CASE WHEN $3 IN ('embedded', 'completed', 'failed') THEN attempt_count ELSE 0 END,
		    updated_at = now()
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, id, from, to, errMsg)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *DatabaseClient) SetExtractedText(ctx context.Context, id, text string) error {
	const q = `
		UPDATE repository_items
		SET extracted_text = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, id, text)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrGone
	}
	return nil
}

func (c *DatabaseClient) BumpItemAttempt(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE repository_items
		SET attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING attempt_count
	`
	var n int
	if err := c.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *DatabaseClient) ResetItemForReingestion(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE repository_items
		SET status = 'pending', error = '', attempt_count = 0,
		    extracted_text = '', updated_at = now()
		WHERE id = $1
		  AND status IN ('embedded', 'completed', 'failed')
		  AND deleted_at IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Chunks

// ReplaceChunks swaps the whole chunk set for an item in one transaction, so
// a concurrent reader sees either the old set or the new one, never a mix.
// The item row is locked and checked first; a soft-deleted item aborts with
// ErrGone so in-flight processing cannot resurrect deleted content.
func (c *DatabaseClient) ReplaceChunks(ctx context.Context, itemID string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	var live bool
	err = tx.QueryRowContext(ctx, `
		SELECT deleted_at IS NULL FROM repository_items WHERE id = $1 FOR UPDATE
	`, itemID).Scan(&live)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return core.ErrGone
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if !live {
		_ = tx.Rollback()
		return core.ErrGone
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = $1`, itemID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO chunks (id, item_id, ordinal, content, embedding, token_count, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if len(ch.Embedding) > 0 {
			vec = pgvector.NewVector(ch.Embedding)
		}
		meta, err := marshalMeta(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, itemID, ch.Ordinal, ch.Content, vec, ch.TokenCount, meta,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByItem(ctx context.Context, itemID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, item_id, ordinal, content, embedding, token_count, metadata, created_at
		FROM chunks
		WHERE item_id = $1
		ORDER BY ordinal ASC
	`
	rows, err := c.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch   models.Chunk
			emb  nullVector
			meta []byte
		)
		if err := rows.Scan(&ch.ID, &ch.ItemID, &ch.Ordinal, &ch.Content, &emb, &ch.TokenCount, &meta, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.slice()
		ch.Metadata = unmarshalMeta(meta)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) AttachEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	const q = `
		UPDATE chunks c
		SET embedding = $2
		FROM repository_items i
		WHERE c.id = $1 AND i.id = c.item_id AND i.deleted_at IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, chunkID, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrGone
	}
	return nil
}

// OCR jobs

func (c *DatabaseClient) CreateOcrJob(ctx context.Context, job *models.OcrJob) error {
	if job == nil {
		return errors.New("nil ocr job")
	}
	const q = `
		INSERT INTO ocr_jobs (id, item_id, provider_job_id, status, page_count, submitted_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err := c.db.ExecContext(ctx, q, job.ID, job.ItemID, job.ProviderJobID, job.Status, job.PageCount)
	return err
}

func (c *DatabaseClient) UpdateOcrJob(ctx context.Context, id string, status models.OcrJobStatus, pageCount int) error {
	const q = `
		UPDATE ocr_jobs SET status = $2, page_count = $3 WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, pageCount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (c *DatabaseClient) GetOcrJobByItem(ctx context.Context, itemID string) (*models.OcrJob, error) {
	const q = `
		SELECT id, item_id, provider_job_id, status, page_count, submitted_at
		FROM ocr_jobs
		WHERE item_id = $1
		ORDER BY submitted_at DESC
		LIMIT 1
	`
	var j models.OcrJob
	err := c.db.QueryRowContext(ctx, q, itemID).Scan(
		&j.ID, &j.ItemID, &j.ProviderJobID, &j.Status, &j.PageCount, &j.SubmittedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Search

// KeywordSearch ranks live chunks in the repository with ts_rank_cd using
// normalization flag 32 (rank/(rank+1)), which bounds the score to [0,1).
// An item-name match contributes a fixed floor score so name-only hits still
// surface.
func (c *DatabaseClient) KeywordSearch(ctx context.Context, repositoryID, query string, limit int) ([]core.KeywordHit, error) {
	const q = `
		SELECT c.id, c.item_id, c.ordinal, c.content, c.token_count, c.embedding IS NOT NULL,
		       i.name, i.created_at,
		       GREATEST(
		           ts_rank_cd(c.content_tsv, plainto_tsquery('english', $2), 32),
		           CASE WHEN i.name ILIKE '%' || $2 || '%' THEN 0.4 ELSE 0 END,
		           CASE WHEN c.content ILIKE '%' || $2 || '%' THEN 0.2 ELSE 0 END
		       ) AS rank
		FROM chunks c
		JOIN repository_items i ON i.id = c.item_id
		WHERE i.repository_id = $1
		  AND i.deleted_at IS NULL
		  AND (
		      c.content_tsv @@ plainto_tsquery('english', $2)
		      OR c.content ILIKE '%' || $2 || '%'
		      OR i.name ILIKE '%' || $2 || '%'
		  )
		ORDER BY rank DESC, c.ordinal ASC, i.created_at ASC, c.id ASC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, repositoryID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.KeywordHit
	for rows.Next() {
		var (
			h        core.KeywordHit
			embedded bool
		)
		if err := rows.Scan(
			&h.Chunk.ID, &h.Chunk.ItemID, &h.Chunk.Ordinal, &h.Chunk.Content, &h.Chunk.TokenCount,
			&embedded, &h.ItemName, &h.ItemCreatedAt, &h.Rank,
		); err != nil {
			return nil, err
		}
		if embedded {
			// Marker only; callers that need the vector load the chunk.
			h.Chunk.Embedding = []float32{}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SemanticSearch orders live, embedded chunks by cosine distance to the query
// vector. Chunks without an embedding are excluded here but stay reachable
// through KeywordSearch.
func (c *DatabaseClient) SemanticSearch(ctx context.Context, repositoryID string, queryVec []float32, limit int) ([]core.SemanticHit, error) {
	const q = `
		SELECT c.id, c.item_id, c.ordinal, c.content, c.token_count,
		       i.name, i.created_at,
		       c.embedding <=> $2 AS distance
		FROM chunks c
		JOIN repository_items i ON i.id = c.item_id
		WHERE i.repository_id = $1
		  AND i.deleted_at IS NULL
		  AND c.embedding IS NOT NULL
		ORDER BY distance ASC, c.ordinal ASC, i.created_at ASC, c.id ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, repositoryID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.SemanticHit
	for rows.Next() {
		var h core.SemanticHit
		if err := rows.Scan(
			&h.Chunk.ID, &h.Chunk.ItemID, &h.Chunk.Ordinal, &h.Chunk.Content, &h.Chunk.TokenCount,
			&h.ItemName, &h.ItemCreatedAt, &h.Distance,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
