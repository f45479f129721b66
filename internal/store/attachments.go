package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tierstore/internal/models"
)

const attachmentColumns = "id, name, url, mimetype, checksum, file_size, db_payload, store_fname, remote_key, index_content, created_at, updated_at"

// CreateAttachment inserts one attachment row and assigns its id.
func (s *Store) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	return insertAttachment(ctx, s.db, attachment)
}

// GetAttachment returns one attachment, or nil when absent.
func (s *Store) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	return getAttachment(ctx, s.db, id)
}

// ListAttachments lists attachments ordered by id.
func (s *Store) ListAttachments(ctx context.Context, limit, offset int) ([]models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return queryAttachments(ctx, s.db, query, args...)
}

// GetAttachments returns the attachments with the given ids, ordered by id.
// Missing ids are skipped.
func (s *Store) GetAttachments(ctx context.Context, ids []int64) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return []models.Attachment{}, nil
	}
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id ASC`
	return queryAttachments(ctx, s.db, query, int64Args(ids)...)
}

// misplacedClause selects rows whose payload lives outside target. Empty
// inline payloads are never selected.
func misplacedClause(target models.Tier) (string, error) {
	switch target {
	case models.TierDB:
		return "(store_fname IS NOT NULL OR remote_key IS NOT NULL)", nil
	case models.TierFile:
		return "(length(db_payload) > 0 OR remote_key IS NOT NULL)", nil
	case models.TierS3:
		return "(length(db_payload) > 0 OR store_fname IS NOT NULL)", nil
	default:
		return "", fmt.Errorf("invalid storage tier: %s", target)
	}
}

// ListMisplaced returns up to limit attachments not stored in target, ordered by id.
func (s *Store) ListMisplaced(ctx context.Context, target models.Tier, limit int) ([]models.Attachment, error) {
	clause, err := misplacedClause(target)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE ` + clause + ` ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryAttachments(ctx, s.db, query, args...)
}

// CountMisplaced counts attachments not stored in target.
func (s *Store) CountMisplaced(ctx context.Context, target models.Tier) (int, error) {
	clause, err := misplacedClause(target)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE `+clause).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ReferencedRemoteKeys reports which of keys are still held by a record.
func (s *Store) ReferencedRemoteKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	return referencedKeys(ctx, s.db, "remote_key", keys)
}

// ReferencedFileKeys reports which of keys are still held by a record.
func (s *Store) ReferencedFileKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	return referencedKeys(ctx, s.db, "store_fname", keys)
}

// CreateAttachment inserts one attachment row inside the transaction.
func (t *Tx) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	return insertAttachment(ctx, t.tx, attachment)
}

// GetAttachment reads one attachment inside the transaction.
func (t *Tx) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	return getAttachment(ctx, t.tx, id)
}

// UpdateAttachment rewrites the mutable columns of an existing attachment,
// including its location.
func (t *Tx) UpdateAttachment(ctx context.Context, attachment *models.Attachment) error {
	if attachment == nil || attachment.ID == 0 {
		return fmt.Errorf("attachment id is required")
	}
	attachment.UpdatedAt = time.Now().UTC()
	cols := models.Columns(attachment.Location)

	res, err := t.tx.ExecContext(ctx, `
		UPDATE attachments SET
			name = ?, url = ?, mimetype = ?, checksum = ?, file_size = ?,
			db_payload = ?, store_fname = ?, remote_key = ?, index_content = ?, updated_at = ?
		WHERE id = ?
	`,
		attachment.Name,
		nullIfEmpty(strings.TrimSpace(attachment.URL)),
		nullIfEmpty(strings.TrimSpace(attachment.Mimetype)),
		attachment.Checksum,
		attachment.FileSize,
		payloadArg(attachment.Location, cols),
		nullIfEmpty(cols.StoreFname),
		nullIfEmpty(cols.RemoteKey),
		nullIfEmpty(attachment.IndexContent),
		formatTime(attachment.UpdatedAt),
		attachment.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAttachments deletes the given rows and returns what was deleted.
func (t *Tx) DeleteAttachments(ctx context.Context, ids []int64) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return []models.Attachment{}, nil
	}
	in := placeholders(len(ids))
	args := int64Args(ids)

	deleted, err := queryAttachments(ctx, t.tx, `SELECT `+attachmentColumns+` FROM attachments WHERE id IN (`+in+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM attachments WHERE id IN (`+in+`)`, args...); err != nil {
		return nil, err
	}
	return deleted, nil
}

func insertAttachment(ctx context.Context, q querier, attachment *models.Attachment) error {
	if attachment == nil {
		return fmt.Errorf("attachment is required")
	}

	now := time.Now().UTC()
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = now
	}
	if attachment.UpdatedAt.IsZero() {
		attachment.UpdatedAt = attachment.CreatedAt
	}
	cols := models.Columns(attachment.Location)

	res, err := q.ExecContext(ctx, `
		INSERT INTO attachments (
			name, url, mimetype, checksum, file_size,
			db_payload, store_fname, remote_key, index_content, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attachment.Name,
		nullIfEmpty(strings.TrimSpace(attachment.URL)),
		nullIfEmpty(strings.TrimSpace(attachment.Mimetype)),
		attachment.Checksum,
		attachment.FileSize,
		payloadArg(attachment.Location, cols),
		nullIfEmpty(cols.StoreFname),
		nullIfEmpty(cols.RemoteKey),
		nullIfEmpty(attachment.IndexContent),
		formatTime(attachment.CreatedAt),
		formatTime(attachment.UpdatedAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	attachment.ID = id
	return nil
}

// payloadArg keeps inline payloads non-NULL, including empty ones, so the
// row still records the db tier.
func payloadArg(loc models.Location, cols models.LocationColumns) any {
	if _, ok := loc.(models.FileRef); ok {
		return nil
	}
	if _, ok := loc.(models.RemoteRef); ok {
		return nil
	}
	if cols.DBPayload == nil {
		return []byte{}
	}
	return cols.DBPayload
}

func getAttachment(ctx context.Context, q querier, id int64) (*models.Attachment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	return scanAttachment(row)
}

func queryAttachments(ctx context.Context, q querier, query string, args ...any) ([]models.Attachment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		if attachment == nil {
			continue
		}
		attachments = append(attachments, *attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func referencedKeys(ctx context.Context, q querier, column string, keys []string) (map[string]bool, error) {
	referenced := map[string]bool{}
	if len(keys) == 0 {
		return referenced, nil
	}
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT `+column+` FROM attachments WHERE `+column+` IN (`+placeholders(len(keys))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		referenced[key] = true
	}
	return referenced, rows.Err()
}

func scanAttachment(scanner interface {
	Scan(dest ...any) error
}) (*models.Attachment, error) {
	attachment := models.Attachment{}

	var url, mimetype, storeFname, remoteKey, indexContent sql.NullString
	var payload []byte
	var createdAt, updatedAt string

	err := scanner.Scan(
		&attachment.ID,
		&attachment.Name,
		&url,
		&mimetype,
		&attachment.Checksum,
		&attachment.FileSize,
		&payload,
		&storeFname,
		&remoteKey,
		&indexContent,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	attachment.URL = url.String
	attachment.Mimetype = mimetype.String
	attachment.IndexContent = indexContent.String

	location, err := models.LocationFromColumns(models.LocationColumns{
		DBPayload:  payload,
		StoreFname: storeFname.String,
		RemoteKey:  remoteKey.String,
	})
	if err != nil {
		return nil, fmt.Errorf("attachment %d: %w", attachment.ID, err)
	}
	attachment.Location = location

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	attachment.CreatedAt = parsedCreated
	attachment.UpdatedAt = parsedUpdated

	return &attachment, nil
}

func placeholders(count int) string {
	values := make([]string, count)
	for i := range values {
		values[i] = "?"
	}
	return strings.Join(values, ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
