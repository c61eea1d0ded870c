package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresManager persists session history in Postgres so conversations
// survive restarts. Schema is created on connect.
type PostgresManager struct {
	db         *pgxpool.Pool
	maxHistory int
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS rag_sessions (
        id BIGSERIAL PRIMARY KEY,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS rag_exchanges (
        id BIGSERIAL PRIMARY KEY,
        session_id TEXT NOT NULL,
        question TEXT NOT NULL,
        answer TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS rag_exchanges_session_idx ON rag_exchanges (session_id, id);
`

// NewPostgresManager connects to Postgres and ensures the schema exists.
func NewPostgresManager(ctx context.Context, connStr string, maxHistory int) (*PostgresManager, error) {
	if maxHistory <= 0 {
		maxHistory = 2
	}
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if _, err := db.Exec(ctx, sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &PostgresManager{db: db, maxHistory: maxHistory}, nil
}

func (p *PostgresManager) Create(ctx context.Context) (string, error) {
	var id int64
	if err := p.db.QueryRow(ctx, `INSERT INTO rag_sessions DEFAULT VALUES RETURNING id;`).Scan(&id); err != nil {
		return "", err
	}
	return fmt.Sprintf("session_%d", id), nil
}

func (p *PostgresManager) AddExchange(ctx context.Context, sessionID, question, answer string) error {
	_, err := p.db.Exec(ctx, `
                INSERT INTO rag_exchanges (session_id, question, answer)
                VALUES ($1, $2, $3);
        `, sessionID, question, answer)
	return err
}

func (p *PostgresManager) History(ctx context.Context, sessionID string) (string, error) {
	rows, err := p.db.Query(ctx, `
                SELECT question, answer FROM (
                        SELECT id, question, answer FROM rag_exchanges
                        WHERE session_id = $1
                        ORDER BY id DESC
                        LIMIT $2
                ) recent ORDER BY id ASC;
        `, sessionID, p.maxHistory)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.Question, &ex.Answer); err != nil {
			return "", err
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return FormatHistory(exchanges), nil
}

func (p *PostgresManager) Clear(ctx context.Context, sessionID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM rag_exchanges WHERE session_id = $1;`, sessionID)
	return err
}

// Close releases the connection pool.
func (p *PostgresManager) Close() {
	p.db.Close()
}

var _ Manager = (*PostgresManager)(nil)
