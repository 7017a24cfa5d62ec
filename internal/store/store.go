// Package store persists build snapshots and fetched post documents in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/ignblog/internal/cms"
)

// ErrNotFound is returned when a build or document does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// Build is one static generation run and the initial page it rendered.
type Build struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Page       cms.Page
	PostCount  int
	Documents  int
	Failed     int
}

// StoredDocument is a fetched post with the data derived from it at fetch time.
type StoredDocument struct {
	Document    cms.Document
	ReadingTime int
	FetchedAt   time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; the build workers and the server share this handle
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	return s.db.PingContext(ctx)
}

// SaveBuild stores a build and its initial page. Saving an existing id fails.
func (s *Store) SaveBuild(ctx context.Context, b Build) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("build id is required")
	}
	if b.FinishedAt.IsZero() {
		return errors.New("finished_at is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (
			id, source, started_at, finished_at, next_page, post_count, document_count, failed_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		b.Source,
		formatTime(b.StartedAt),
		formatTime(b.FinishedAt),
		string(b.Page.NextPage),
		len(b.Page.Results),
		b.Documents,
		b.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}

	for i, p := range b.Page.Results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_posts (build_id, position, uid, title, subtitle, author, first_publication_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, i, p.UID, p.Title, p.Subtitle, p.Author, nullTime(p.PublicationDate))
		if err != nil {
			return fmt.Errorf("insert build post %s: %w", p.UID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit build: %w", err)
	}
	return nil
}

// LatestBuild returns the most recently finished build with its initial page.
func (s *Store) LatestBuild(ctx context.Context) (Build, error) {
	if s == nil || s.db == nil {
		return Build{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, started_at, finished_at, next_page, post_count, document_count, failed_count
		FROM builds
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("latest build: %w", ErrNotFound)
	}
	if err != nil {
		return Build{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, title, subtitle, author, first_publication_date
		FROM build_posts
		WHERE build_id = ?
		ORDER BY position ASC
	`, b.ID)
	if err != nil {
		return Build{}, fmt.Errorf("query build posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	b.Page.Results = make([]cms.PostSummary, 0, b.PostCount)
	for rows.Next() {
		var p cms.PostSummary
		var published sql.NullString
		if err := rows.Scan(&p.UID, &p.Title, &p.Subtitle, &p.Author, &published); err != nil {
			return Build{}, fmt.Errorf("scan build post: %w", err)
		}
		if p.PublicationDate, err = parseNullTime(published); err != nil {
			return Build{}, fmt.Errorf("parse first_publication_date: %w", err)
		}
		b.Page.Results = append(b.Page.Results, p)
	}
	if err := rows.Err(); err != nil {
		return Build{}, fmt.Errorf("iterate build posts: %w", err)
	}
	return b, nil
}

// ListBuilds returns up to limit builds, newest first, without their posts.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]Build, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, next_page, post_count, document_count, failed_count
		FROM builds
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// PruneBuilds deletes all but the newest keep builds.
func (s *Store) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if keep < 1 {
		return 0, errors.New("keep must be at least 1")
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM builds
		WHERE id NOT IN (
			SELECT id FROM builds ORDER BY finished_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune builds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune builds rows: %w", err)
	}
	return n, nil
}

// SaveDocument inserts or replaces a fetched document.
func (s *Store) SaveDocument(ctx context.Context, doc cms.Document, readingTime int, fetchedAt time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(doc.Type) == "" {
		return errors.New("document type is required")
	}
	if strings.TrimSpace(doc.UID) == "" {
		return errors.New("document uid is required")
	}
	if fetchedAt.IsZero() {
		return errors.New("fetched_at is required")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (type, uid, title, data, first_publication_date, fetched_at, reading_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, uid) DO UPDATE SET
			title = excluded.title,
			data = excluded.data,
			first_publication_date = excluded.first_publication_date,
			fetched_at = excluded.fetched_at,
			reading_time = excluded.reading_time
	`,
		doc.Type,
		doc.UID,
		doc.Title,
		string(data),
		nullTime(doc.PublicationDate),
		formatTime(fetchedAt),
		readingTime,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// GetDocument returns a stored document or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, docType, uid string) (StoredDocument, error) {
	if s == nil || s.db == nil {
		return StoredDocument{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var data, fetchedAt string
	var readingTime int
	err := s.db.QueryRowContext(ctx, `
		SELECT data, fetched_at, reading_time FROM documents WHERE type = ? AND uid = ?
	`, docType, uid).Scan(&data, &fetchedAt, &readingTime)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredDocument{}, fmt.Errorf("document %s/%s: %w", docType, uid, ErrNotFound)
	}
	if err != nil {
		return StoredDocument{}, fmt.Errorf("query document: %w", err)
	}

	var out StoredDocument
	if err := json.Unmarshal([]byte(data), &out.Document); err != nil {
		return StoredDocument{}, fmt.Errorf("unmarshal document %s/%s: %w", docType, uid, err)
	}
	out.ReadingTime = readingTime
	if out.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return StoredDocument{}, fmt.Errorf("parse fetched_at: %w", err)
	}
	return out, nil
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(scanner rowScanner) (Build, error) {
	var b Build
	var startedAt, finishedAt, nextPage string
	err := scanner.Scan(&b.ID, &b.Source, &startedAt, &finishedAt, &nextPage, &b.PostCount, &b.Documents, &b.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, err
	}
	if err != nil {
		return Build{}, fmt.Errorf("scan build: %w", err)
	}
	if b.StartedAt, err = parseTime(startedAt); err != nil {
		return Build{}, fmt.Errorf("parse started_at: %w", err)
	}
	if b.FinishedAt, err = parseTime(finishedAt); err != nil {
		return Build{}, fmt.Errorf("parse finished_at: %w", err)
	}
	b.Page.NextPage = cms.Cursor(nextPage)
	return b, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Time{}.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	ts, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
