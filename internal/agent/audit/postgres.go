package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"cloudops-agent/internal/models"
)

// Schema creates the user_interactions table.
const Schema = `
CREATE TABLE IF NOT EXISTS user_interactions (
    id                 BIGSERIAL PRIMARY KEY,
    timestamp          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    user_message       TEXT NOT NULL,
    detected_intent    VARCHAR(64),
    entities           JSONB,
    system_response    TEXT,
    operation_executed VARCHAR(64),
    operation_result   JSONB
);
CREATE INDEX IF NOT EXISTS idx_user_interactions_timestamp ON user_interactions (timestamp DESC);
`

const (
	insertInteraction = `INSERT INTO user_interactions
		(timestamp, user_message, detected_intent, entities, system_response, operation_executed, operation_result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	listInteractions = `SELECT id, timestamp, user_message, detected_intent, entities, system_response, operation_executed, operation_result
		FROM user_interactions ORDER BY id DESC LIMIT $1`
)

// PostgresStore appends records to user_interactions. Each Append is a single
// INSERT, so a record is either fully visible or absent.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec *models.InteractionRecord) error {
	entities, err := json.Marshal(rec.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	var result interface{}
	if rec.OperationResult != nil {
		b, err := json.Marshal(rec.OperationResult)
		if err != nil {
			return fmt.Errorf("marshal operation result: %w", err)
		}
		result = string(b)
	}

	var executed interface{}
	if rec.OperationExecuted != nil {
		executed = *rec.OperationExecuted
	}

	var id int64
	err = s.db.QueryRowContext(ctx, insertInteraction,
		rec.Timestamp,
		rec.UserMessage,
		rec.DetectedIntent,
		string(entities),
		rec.SystemResponse,
		executed,
		result,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	rec.ID = id
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]models.InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, listInteractions, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []models.InteractionRecord
	for rows.Next() {
		var (
			rec      models.InteractionRecord
			intent   sql.NullString
			response sql.NullString
			executed sql.NullString
			entities []byte
			result   []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.UserMessage, &intent, &entities, &response, &executed, &result); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		rec.DetectedIntent = intent.String
		rec.SystemResponse = response.String
		if executed.Valid {
			op := executed.String
			rec.OperationExecuted = &op
		}
		if len(entities) > 0 {
			if err := json.Unmarshal(entities, &rec.Entities); err != nil {
				return nil, fmt.Errorf("decode entities of interaction %d: %w", rec.ID, err)
			}
		}
		if len(result) > 0 {
			if err := json.Unmarshal(result, &rec.OperationResult); err != nil {
				return nil, fmt.Errorf("decode result of interaction %d: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}
