package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// MySQLSink is a MySQL implementation of the AnalyticsSink interface.
type MySQLSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLSink creates a new MySQL analytics sink
func NewMySQLSink(dsn string, logger *zap.Logger) (*MySQLSink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if _, err := db.Exec(createTableMySQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLSink{db: db, logger: logger}, nil
}

const createTableMySQL = `
	CREATE TABLE IF NOT EXISTS classification_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sender VARCHAR(320),
		subject VARCHAR(998),
		request_type VARCHAR(255),
		sub_request_type VARCHAR(255),
		confidence DOUBLE,
		support_group VARCHAR(255),
		is_duplicate BOOLEAN,
		duplicate_confidence DOUBLE,
		extracted_fields TEXT,
		error TEXT,
		processing_time_ms DOUBLE,
		processed_at TIMESTAMP,
		INDEX idx_processed_at (processed_at)
	)
`

// Record stores one classification outcome.
func (s *MySQLSink) Record(ctx context.Context, email *core.InboundEmail, result *core.ClassificationResult) error {
	requestType, subRequestType, confidence := primaryColumns(result)
	fieldsJSON, err := json.Marshal(result.ExtractedFields)
	if err != nil {
		return fmt.Errorf("failed to marshal extracted fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classification_history
			(sender, subject, request_type, sub_request_type, confidence, support_group,
			 is_duplicate, duplicate_confidence, extracted_fields, error, processing_time_ms, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, email.Sender, email.Subject, requestType, subRequestType, confidence, result.SupportGroup,
		result.IsDuplicate, result.DuplicateConfidence, string(fieldsJSON), errColumn(result),
		result.ProcessingTimeMs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert classification record: %w", err)
	}
	return nil
}

// Stop closes the database connection.
func (s *MySQLSink) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL connection", zap.Error(err))
	}
}
