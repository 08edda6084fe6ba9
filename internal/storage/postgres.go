package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/treshel/botboard/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (name, slug, voiceflow_project_id, voiceflow_api_key, last_transcript_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		project.Name,
		project.Slug,
		project.VoiceflowProjectID,
		project.VoiceflowAPIKey,
		project.LastTranscriptNumber,
	).Scan(&project.ID)
	if err != nil {
		return fmt.Errorf("error creating project: %v", err)
	}

	return nil
}

const projectColumns = `id, name, slug, voiceflow_project_id, voiceflow_api_key, last_transcript_number`

func (s *PostgresStorage) getProject(ctx context.Context, where string, arg any) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + where

	project := &models.Project{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&project.ID,
		&project.Name,
		&project.Slug,
		&project.VoiceflowProjectID,
		&project.VoiceflowAPIKey,
		&project.LastTranscriptNumber,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying project: %v", err)
	}

	return project, nil
}

func (s *PostgresStorage) GetProjectByVoiceflowID(ctx context.Context, voiceflowProjectID string) (*models.Project, error) {
	return s.getProject(ctx, `voiceflow_project_id = $1`, voiceflowProjectID)
}

func (s *PostgresStorage) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	return s.getProject(ctx, `slug = $1`, slug)
}

const transcriptColumns = `id, project_id, voiceflow_transcript_id, transcript_number,
		name, image, language, topic, message_count, is_complete,
		first_response, last_response, duration, metadata, report_tags,
		bookmarked, is_archived, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (*models.Transcript, error) {
	t := &models.Transcript{}
	var (
		firstResponse sql.NullTime
		lastResponse  sql.NullTime
		duration      sql.NullInt64
		metadata      []byte
	)

	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.VoiceflowTranscriptID,
		&t.TranscriptNumber,
		&t.Name,
		&t.Image,
		&t.Language,
		&t.Topic,
		&t.MessageCount,
		&t.IsComplete,
		&firstResponse,
		&lastResponse,
		&duration,
		&metadata,
		pq.Array(&t.ReportTags),
		&t.Bookmarked,
		&t.IsArchived,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if firstResponse.Valid {
		t.FirstResponse = &firstResponse.Time
	}
	if lastResponse.Valid {
		t.LastResponse = &lastResponse.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		t.Duration = &d
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("error decoding transcript metadata: %v", err)
		}
	}

	return t, nil
}

func (s *PostgresStorage) GetTranscriptState(ctx context.Context, projectID int64, voiceflowTranscriptID string) (*TranscriptState, error) {
	query := `SELECT ` + transcriptColumns + `
		FROM transcripts
		WHERE project_id = $1 AND voiceflow_transcript_id = $2`

	transcript, err := scanTranscript(s.db.QueryRowContext(ctx, query, projectID, voiceflowTranscriptID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying transcript: %v", err)
	}

	state := &TranscriptState{
		Transcript: *transcript,
		TurnIDs:    make(map[string]struct{}),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT voiceflow_turn_id FROM turns WHERE transcript_id = $1`, transcript.ID)
	if err != nil {
		return nil, fmt.Errorf("error querying turn ids: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turnID string
		if err := rows.Scan(&turnID); err != nil {
			return nil, fmt.Errorf("error scanning turn id: %v", err)
		}
		state.TurnIDs[turnID] = struct{}{}
	}

	return state, rows.Err()
}

func (s *PostgresStorage) SaveTranscript(ctx context.Context, params SaveTranscriptParams) (*models.Transcript, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	// Reuse the stored number for known transcripts; allocate the
	// next one atomically for new transcripts. The increment-and-read
	// is a single statement so two overlapping runs can never hand
	// out the same number.
	var transcriptNumber int
	err = tx.QueryRowContext(ctx,
		`SELECT transcript_number FROM transcripts
		 WHERE project_id = $1 AND voiceflow_transcript_id = $2`,
		params.ProjectID, params.VoiceflowTranscriptID,
	).Scan(&transcriptNumber)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			`UPDATE projects SET last_transcript_number = last_transcript_number + 1
			 WHERE id = $1
			 RETURNING last_transcript_number`,
			params.ProjectID,
		).Scan(&transcriptNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
	}
	if err != nil {
		return nil, fmt.Errorf("error resolving transcript number: %v", err)
	}

	metadata, err := json.Marshal(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("error encoding transcript metadata: %v", err)
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var (
		firstResponse sql.NullTime
		lastResponse  sql.NullTime
		duration      sql.NullInt64
	)
	if params.Metrics.FirstResponse != nil {
		firstResponse = sql.NullTime{Time: *params.Metrics.FirstResponse, Valid: true}
	}
	if params.Metrics.LastResponse != nil {
		lastResponse = sql.NullTime{Time: *params.Metrics.LastResponse, Valid: true}
	}
	if params.Metrics.Duration != nil {
		duration = sql.NullInt64{Int64: int64(*params.Metrics.Duration), Valid: true}
	}

	var classification models.Classification
	hasClassification := params.Classification != nil
	if hasClassification {
		classification = *params.Classification
	}

	reportTags := params.ReportTags
	if reportTags == nil {
		reportTags = []string{}
	}

	// transcript_number and created_at are set on insert only and
	// never touched by the conflict branch; language/topic stay as
	// stored unless a fresh classification is being applied.
	query := `
		INSERT INTO transcripts (
			project_id, voiceflow_transcript_id, transcript_number,
			name, image, language, topic, message_count, is_complete,
			first_response, last_response, duration, metadata, report_tags,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (project_id, voiceflow_transcript_id) DO UPDATE SET
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			language = CASE WHEN $16 THEN EXCLUDED.language ELSE transcripts.language END,
			topic = CASE WHEN $16 THEN EXCLUDED.topic ELSE transcripts.topic END,
			message_count = EXCLUDED.message_count,
			is_complete = EXCLUDED.is_complete,
			first_response = EXCLUDED.first_response,
			last_response = EXCLUDED.last_response,
			duration = EXCLUDED.duration,
			metadata = EXCLUDED.metadata,
			report_tags = EXCLUDED.report_tags,
			updated_at = now()
		RETURNING ` + transcriptColumns

	saved, err := scanTranscript(tx.QueryRowContext(ctx, query,
		params.ProjectID,
		params.VoiceflowTranscriptID,
		transcriptNumber,
		params.Name,
		params.Image,
		classification.Language,
		classification.Topic,
		params.Metrics.MessageCount,
		params.Metrics.IsComplete,
		firstResponse,
		lastResponse,
		duration,
		metadata,
		pq.Array(reportTags),
		createdAt,
		hasClassification,
	))
	if err != nil {
		return nil, fmt.Errorf("error upserting transcript: %v", err)
	}

	// Append-only turn inserts; a redelivered turn id is a no-op.
	for _, turn := range params.NewTurns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (transcript_id, voiceflow_turn_id, type, payload, start_time, sequence, format)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (transcript_id, voiceflow_turn_id) DO NOTHING`,
			saved.ID,
			turn.VoiceflowTurnID,
			turn.Type,
			[]byte(turn.Payload),
			turn.StartTime,
			turn.Sequence,
			turn.Format,
		)
		if err != nil {
			return nil, fmt.Errorf("error inserting turn %s: %v", turn.VoiceflowTurnID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transcript save: %v", err)
	}

	return saved, nil
}

func (s *PostgresStorage) ListTranscripts(ctx context.Context, projectID int64) ([]*models.Transcript, error) {
	query := `SELECT ` + transcriptColumns + `
		FROM transcripts
		WHERE project_id = $1 AND is_archived = FALSE
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("error querying transcripts: %v", err)
	}
	defer rows.Close()

	var transcripts []*models.Transcript
	for rows.Next() {
		transcript, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transcript: %v", err)
		}
		transcripts = append(transcripts, transcript)
	}

	return transcripts, rows.Err()
}

func (s *PostgresStorage) GetTranscript(ctx context.Context, projectID int64, transcriptNumber int) (*models.Transcript, []*models.Turn, error) {
	query := `SELECT ` + transcriptColumns + `
		FROM transcripts
		WHERE project_id = $1 AND transcript_number = $2`

	transcript, err := scanTranscript(s.db.QueryRowContext(ctx, query, projectID, transcriptNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error querying transcript: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transcript_id, voiceflow_turn_id, type, payload, start_time, sequence, format
		FROM turns
		WHERE transcript_id = $1
		ORDER BY start_time ASC, sequence ASC`, transcript.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying turns: %v", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		turn := &models.Turn{}
		var payload []byte
		err := rows.Scan(
			&turn.ID,
			&turn.TranscriptID,
			&turn.VoiceflowTurnID,
			&turn.Type,
			&payload,
			&turn.StartTime,
			&turn.Sequence,
			&turn.Format,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("error scanning turn: %v", err)
		}
		turn.Payload = payload
		turns = append(turns, turn)
	}

	return transcript, turns, rows.Err()
}

func (s *PostgresStorage) setTranscriptFlag(ctx context.Context, column string, projectID int64, transcriptNumber int, value bool) error {
	query := fmt.Sprintf(`
		UPDATE transcripts SET %s = $1, updated_at = now()
		WHERE project_id = $2 AND transcript_number = $3`, column)

	result, err := s.db.ExecContext(ctx, query, value, projectID, transcriptNumber)
	if err != nil {
		return fmt.Errorf("error updating transcript: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return ErrTranscriptNotFound
	}

	return nil
}

func (s *PostgresStorage) SetBookmarked(ctx context.Context, projectID int64, transcriptNumber int, bookmarked bool) error {
	return s.setTranscriptFlag(ctx, "bookmarked", projectID, transcriptNumber, bookmarked)
}

func (s *PostgresStorage) SetArchived(ctx context.Context, projectID int64, transcriptNumber int, archived bool) error {
	return s.setTranscriptFlag(ctx, "is_archived", projectID, transcriptNumber, archived)
}

func (s *PostgresStorage) LanguageDistribution(ctx context.Context, projectID int64) ([]LanguageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT language, COUNT(*)
		FROM transcripts
		WHERE project_id = $1 AND language <> ''
		GROUP BY language
		ORDER BY COUNT(*) DESC, language ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("error querying language distribution: %v", err)
	}
	defer rows.Close()

	var counts []LanguageCount
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.Language, &lc.Count); err != nil {
			return nil, fmt.Errorf("error scanning language count: %v", err)
		}
		counts = append(counts, lc)
	}

	return counts, rows.Err()
}

func (s *PostgresStorage) DailyMessageCounts(ctx context.Context, projectID int64, days int) ([]DailyMessageStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			to_char(date_trunc('day', created_at), 'YYYY-MM-DD') AS date,
			ROUND(AVG(message_count))::float8 AS average_count,
			COUNT(*) AS total_conversations
		FROM transcripts
		WHERE project_id = $1 AND created_at >= now() - make_interval(days => $2)
		GROUP BY 1
		ORDER BY 1 ASC`, projectID, days)
	if err != nil {
		return nil, fmt.Errorf("error querying daily message counts: %v", err)
	}
	defer rows.Close()

	var stats []DailyMessageStat
	for rows.Next() {
		var stat DailyMessageStat
		if err := rows.Scan(&stat.Date, &stat.AverageCount, &stat.TotalConversations); err != nil {
			return nil, fmt.Errorf("error scanning daily message stat: %v", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

func (s *PostgresStorage) GetKnowledgeBase(ctx context.Context, projectID int64) (*models.KnowledgeBase, error) {
	kb := &models.KnowledgeBase{ProjectID: projectID}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, updated_at FROM knowledge_bases WHERE project_id = $1`,
		projectID,
	).Scan(&kb.ID, &kb.Name, &kb.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.KnowledgeBase{ProjectID: projectID, Name: "FAQs", Entries: []models.KnowledgeEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying knowledge base: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer
		FROM knowledge_entries
		WHERE knowledge_base_id = $1
		ORDER BY position ASC`, kb.ID)
	if err != nil {
		return nil, fmt.Errorf("error querying knowledge entries: %v", err)
	}
	defer rows.Close()

	kb.Entries = []models.KnowledgeEntry{}
	for rows.Next() {
		var entry models.KnowledgeEntry
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.Answer); err != nil {
			return nil, fmt.Errorf("error scanning knowledge entry: %v", err)
		}
		kb.Entries = append(kb.Entries, entry)
	}

	return kb, rows.Err()
}

func (s *PostgresStorage) ReplaceKnowledgeBase(ctx context.Context, projectID int64, name string, entries []models.KnowledgeEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	var kbID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO knowledge_bases (project_id, name, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (project_id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		RETURNING id`, projectID, name,
	).Scan(&kbID)
	if err != nil {
		return fmt.Errorf("error upserting knowledge base: %v", err)
	}

	// Full replace: the editor always saves the complete set.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_entries WHERE knowledge_base_id = $1`, kbID); err != nil {
		return fmt.Errorf("error clearing knowledge entries: %v", err)
	}

	for i, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_entries (knowledge_base_id, question, answer, position)
			VALUES ($1, $2, $3, $4)`,
			kbID, entry.Question, entry.Answer, i,
		); err != nil {
			return fmt.Errorf("error inserting knowledge entry: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing knowledge base replace: %v", err)
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
