package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nimbusdrive/file-service/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(connectionString string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables this service owns. The users table is
// owned by the accounts service; only the columns the upload path reads and
// increments are declared here, for standalone deployments and tests.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		active BOOLEAN NOT NULL DEFAULT true,
		storage_quota BIGINT NOT NULL DEFAULT 5368709120,
		storage_used BIGINT NOT NULL DEFAULT 0 CHECK (storage_used >= 0)
	);

	CREATE TABLE IF NOT EXISTS files (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		storage_name VARCHAR(255) NOT NULL UNIQUE,
		mime_type VARCHAR(127) NOT NULL,
		size BIGINT NOT NULL,
		hash VARCHAR(64) NOT NULL,
		storage_path VARCHAR(500) NOT NULL,
		storage_backend VARCHAR(50) NOT NULL DEFAULT 'local',
		folder_id UUID,
		visibility VARCHAR(10) NOT NULL DEFAULT 'private',
		tags TEXT[] NOT NULL DEFAULT '{}',
		status VARCHAR(12) NOT NULL DEFAULT 'processing',
		download_count BIGINT NOT NULL DEFAULT 0,
		last_accessed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_files_owner_folder ON files(owner_id, folder_id);
	CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const fileColumns = `id, owner_id, name, storage_name, mime_type, size, hash,
	storage_path, storage_backend, folder_id, visibility, tags, status,
	download_count, last_accessed_at, created_at, updated_at`

func (s *PostgresStore) CreateFile(ctx context.Context, rec *models.FileRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Tags == nil {
		rec.Tags = pq.StringArray{}
	}

	query, args, err := psql.Insert("files").
		Columns("id", "owner_id", "name", "storage_name", "mime_type", "size",
			"hash", "storage_path", "storage_backend", "folder_id",
			"visibility", "tags", "status", "created_at", "updated_at").
		Values(rec.ID, rec.OwnerID, rec.Name, rec.StorageName, rec.MimeType,
			rec.Size, rec.Hash, rec.StoragePath, rec.StorageBackend,
			rec.FolderID, rec.Visibility, rec.Tags, rec.Status,
			rec.CreatedAt, rec.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindFile(ctx context.Context, id, ownerID string) (*models.FileRecord, error) {
	query, args, err := psql.Select(fileColumns).
		From("files").
		Where(sq.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rec models.FileRecord
	if err := s.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find file record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]models.FileRecord, error) {
	builder := psql.Select(fileColumns).
		From("files").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC")
	if folderID != nil {
		builder = builder.Where(sq.Eq{"folder_id": *folderID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	files := []models.FileRecord{}
	if err := s.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	return files, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id, ownerID string) error {
	query, args, err := psql.Delete("files").
		Where(sq.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFilePresent is a guarded transition: the WHERE clause only matches
// records still in processing, so a redelivered job sees zero rows affected
// instead of re-flipping, and a failed record is never resurrected.
func (s *PostgresStore) MarkFilePresent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		models.StatusPresent, id, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark file present: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) MarkFileFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		models.StatusFailed, id, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark file failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchFileAccess(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET download_count = download_count + 1,
			last_accessed_at = NOW()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch file access: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		`SELECT id, active, storage_quota, storage_used FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) AddStorageUsed(ctx context.Context, ownerID string, delta int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET storage_used = storage_used + $1 WHERE id = $2`,
		delta, ownerID)
	if err != nil {
		return fmt.Errorf("add storage used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReleaseStorageUsed(ctx context.Context, ownerID string, delta int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET storage_used = GREATEST(storage_used - $1, 0) WHERE id = $2`,
		delta, ownerID)
	if err != nil {
		return fmt.Errorf("release storage used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
