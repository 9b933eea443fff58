package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"patent-rag/internal/config"
	"patent-rag/internal/models"
)

// ChunkRow is one chunk of one document
type ChunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            int64  `bun:"id,pk,autoincrement"`
	DocPath       string `bun:"doc_path,notnull"`
	Seq           int    `bun:"seq,notnull"`
	Kind          string `bun:"kind,notnull"`
	Page          int    `bun:"page,notnull"`
	Content       string `bun:"content,notnull"`
	ImagePath     string `bun:"image_path,nullzero"`
}

func (r ChunkRow) record() models.ChunkRecord {
	return models.ChunkRecord{
		Kind:      models.ChunkKind(r.Kind),
		Page:      r.Page,
		Content:   r.Content,
		ImagePath: r.ImagePath,
	}
}

// DocumentRow marks a document as stored, including documents with no chunks
type DocumentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	DocPath       string    `bun:"doc_path,pk"`
	Chunks        int       `bun:"chunks,notnull"`
	StoredAt      time.Time `bun:"stored_at,notnull,default:current_timestamp"`
}

// PGStore keeps chunk metadata in postgres
type PGStore struct {
	db *bun.DB
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.StoreConfig) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

// NewPGStore connects and creates the documents and chunks tables if needed
func NewPGStore(ctx context.Context, cfg *config.StoreConfig) (*PGStore, error) {
	db := NewDB(ConnectDB(cfg), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &PGStore{db: db}, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*DocumentRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*ChunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().
		Model((*ChunkRow)(nil)).
		Index("chunks_doc_seq_idx").
		Column("doc_path", "seq").
		Unique().
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *PGStore) Load(ctx context.Context) (models.Metadata, error) {
	var docs []DocumentRow
	if err := s.db.NewSelect().Model(&docs).Order("doc_path").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	var rows []ChunkRow
	if err := s.db.NewSelect().Model(&rows).Order("doc_path", "seq").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	return rowsToMetadata(docs, rows), nil
}

func (s *PGStore) Get(ctx context.Context, docPath string) ([]models.Chunk, bool, error) {
	stored, err := s.db.NewSelect().
		Model((*DocumentRow)(nil)).
		Where("doc_path = ?", docPath).
		Exists(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up %s: %w", docPath, err)
	}
	if !stored {
		return nil, false, nil
	}

	var rows []ChunkRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("doc_path = ?", docPath).
		Order("seq").
		Scan(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load chunks for %s: %w", docPath, err)
	}
	chunks, err := documentChunks(docPath, rows)
	if err != nil {
		return nil, false, err
	}
	return chunks, true, nil
}

// Save replaces the rows of docPath in one transaction, leaving other documents untouched.
// The documents row is written even when chunks is empty.
func (s *PGStore) Save(ctx context.Context, docPath string, chunks []models.Chunk) error {
	rows := chunksToRows(docPath, chunks)
	doc := &DocumentRow{DocPath: docPath, Chunks: len(rows), StoredAt: time.Now().UTC()}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(doc).
			On("CONFLICT (doc_path) DO UPDATE").
			Set("chunks = EXCLUDED.chunks").
			Set("stored_at = EXCLUDED.stored_at").
			Exec(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*ChunkRow)(nil)).Where("doc_path = ?", docPath).Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store chunks for %s: %w", docPath, err)
	}
	log.Info().Str("doc", docPath).Int("chunks", len(rows)).Msg("Chunks stored in database")
	return nil
}

// DropChunks removes the chunks and documents tables
func DropChunks(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewDropTable().Model((*ChunkRow)(nil)).IfExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewDropTable().Model((*DocumentRow)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *PGStore) Reset(ctx context.Context) error {
	if err := DropChunks(ctx, s.db); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return InitDB(ctx, s.db)
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

func chunksToRows(docPath string, chunks []models.Chunk) []ChunkRow {
	rows := make([]ChunkRow, 0, len(chunks))
	for i, rec := range models.ToRecords(chunks) {
		rows = append(rows, ChunkRow{
			DocPath:   docPath,
			Seq:       i,
			Kind:      string(rec.Kind),
			Page:      rec.Page,
			Content:   rec.Content,
			ImagePath: rec.ImagePath,
		})
	}
	return rows
}

// rowsToMetadata gives every stored document an entry, with an empty chunk
// list when it has no rows. rows must be ordered by doc_path, seq.
func rowsToMetadata(docs []DocumentRow, rows []ChunkRow) models.Metadata {
	meta := models.Metadata{}
	for _, d := range docs {
		meta[d.DocPath] = models.DocumentChunks{Chunks: []models.ChunkRecord{}}
	}
	for _, row := range rows {
		doc := meta[row.DocPath]
		doc.Chunks = append(doc.Chunks, row.record())
		meta[row.DocPath] = doc
	}
	return meta
}

// documentChunks decodes the rows of one stored document
func documentChunks(docPath string, rows []ChunkRow) ([]models.Chunk, error) {
	records := make([]models.ChunkRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	chunks, err := models.FromRecords(records)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", docPath, err)
	}
	return chunks, nil
}
