package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ticketer-io/ticketer/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS batches (
			id         TEXT PRIMARY KEY,
			file_name  TEXT NOT NULL,
			bucket     TEXT NOT NULL DEFAULT '',
			token      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS batch_tickets (
			id                TEXT PRIMARY KEY,
			batch_id          TEXT NOT NULL REFERENCES batches(id),
			position          INTEGER NOT NULL,
			subject           TEXT NOT NULL,
			body              TEXT NOT NULL DEFAULT '',
			estimation_points INTEGER NOT NULL DEFAULT 0,
			sub_ticket_of     TEXT NOT NULL DEFAULT '',
			expanded          INTEGER NOT NULL DEFAULT 0,
			uploaded_to       TEXT NOT NULL DEFAULT '',
			uploaded_at       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_batch_tickets_batch ON batch_tickets(batch_id, position);
		CREATE INDEX IF NOT EXISTS idx_batches_file ON batches(file_name);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveBatch(b *Batch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: save batch: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO batches (id, file_name, bucket, token, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name=excluded.file_name, bucket=excluded.bucket, token=excluded.token
	`, b.ID, b.FileName, b.Bucket, b.Token, b.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: save batch: %w", err)
	}

	// Preserve upload markers across a ticket replace.
	markers := make(map[string]struct {
		to string
		at *string
	})
	rows, err := tx.Query(`SELECT id, uploaded_to, uploaded_at FROM batch_tickets WHERE batch_id = ? AND uploaded_to != ''`, b.ID)
	if err != nil {
		return fmt.Errorf("store: save batch: read markers: %w", err)
	}
	for rows.Next() {
		var id, to string
		var at *string
		if err := rows.Scan(&id, &to, &at); err != nil {
			rows.Close()
			return fmt.Errorf("store: save batch: scan marker: %w", err)
		}
		markers[id] = struct {
			to string
			at *string
		}{to, at}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: save batch: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM batch_tickets WHERE batch_id = ?`, b.ID); err != nil {
		return fmt.Errorf("store: save batch: clear tickets: %w", err)
	}

	for i, r := range b.Tickets {
		uploadedTo := string(r.UploadedTo)
		var uploadedAt *string
		if r.UploadedAt != nil {
			v := r.UploadedAt.Format(time.RFC3339)
			uploadedAt = &v
		}
		if m, ok := markers[r.ID]; ok && uploadedTo == "" {
			uploadedTo = m.to
			uploadedAt = m.at
		}
		_, err := tx.Exec(`
			INSERT INTO batch_tickets (id, batch_id, position, subject, body, estimation_points, sub_ticket_of, expanded, uploaded_to, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, b.ID, i, r.Subject, r.Body, r.EstimationPoints, r.SubTicketOf, boolToInt(r.Expanded), uploadedTo, uploadedAt)
		if err != nil {
			return fmt.Errorf("store: save batch: insert ticket %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBatch(id string) (*Batch, error) {
	row := s.db.QueryRow(`SELECT id, file_name, bucket, token, created_at FROM batches WHERE id = ?`, id)

	b, err := scanBatch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("batch %q not found", id)
		}
		return nil, fmt.Errorf("store: get batch: %w", err)
	}

	tickets, err := s.loadTickets(id)
	if err != nil {
		return nil, err
	}
	b.Tickets = tickets
	return b, nil
}

func (s *SQLiteStore) ListBatches(f Filter) ([]*Batch, error) {
	query := `SELECT id, file_name, bucket, token, created_at FROM batches WHERE 1=1`
	var args []any

	if f.FileName != "" {
		query += " AND file_name = ?"
		args = append(args, f.FileName)
	}
	if f.Query != "" {
		query += " AND file_name LIKE ?"
		args = append(args, fmt.Sprintf("%%%s%%", f.Query))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list batches: scan: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list batches: %w", err)
	}

	for _, b := range batches {
		tickets, err := s.loadTickets(b.ID)
		if err != nil {
			return nil, err
		}
		b.Tickets = tickets
	}
	return batches, nil
}

func (s *SQLiteStore) MarkUploaded(ticketID string, platform protocol.Platform) error {
	now := time.Now().Format(time.RFC3339)
	result, err := s.db.Exec(`UPDATE batch_tickets SET uploaded_to = ?, uploaded_at = ? WHERE id = ?`,
		string(platform), now, ticketID)
	if err != nil {
		return fmt.Errorf("store: mark uploaded: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q not found", ticketID)
	}
	return nil
}

func (s *SQLiteStore) HasFile(fileName string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM batches WHERE file_name = ?`, fileName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: has file: %w", err)
	}
	return count > 0, nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

func (s *SQLiteStore) loadTickets(batchID string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, subject, body, estimation_points, sub_ticket_of, expanded, uploaded_to, uploaded_at
		FROM batch_tickets WHERE batch_id = ? ORDER BY position
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("store: load tickets: %w", err)
	}
	defer rows.Close()

	var tickets []Record
	for rows.Next() {
		var r Record
		var expanded int
		var uploadedTo string
		var uploadedAt *string
		if err := rows.Scan(&r.ID, &r.Subject, &r.Body, &r.EstimationPoints, &r.SubTicketOf, &expanded, &uploadedTo, &uploadedAt); err != nil {
			return nil, fmt.Errorf("store: scan ticket: %w", err)
		}
		r.Expanded = expanded != 0
		r.UploadedTo = protocol.Platform(uploadedTo)
		if uploadedAt != nil {
			t, _ := time.Parse(time.RFC3339, *uploadedAt)
			r.UploadedAt = &t
		}
		tickets = append(tickets, r)
	}
	return tickets, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*Batch, error) {
	var b Batch
	var createdAt string
	if err := row.Scan(&b.ID, &b.FileName, &b.Bucket, &b.Token, &createdAt); err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
