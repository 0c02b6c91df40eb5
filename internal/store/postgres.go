package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

const dbTimeout = 5 * time.Second

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

//go:embed schema.sql
var schemaSQL string

// PostgresStore is a PostgreSQL-backed Store. Mutations run in a
// transaction holding a row lock (or an advisory lock for upserts).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- sessions ---

const sessionColumns = `id, user_id, document_id, question_ids, answers, status, started_at, completed_at`

func (s *PostgresStore) CreateSession(ctx context.Context, sess learning.Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = learning.SessionInProgress
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if err := s.writeSession(ctx, s.pool, sess, true); err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*learning.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM learning_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, id string, mutate func(*learning.Session) error) (learning.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var out learning.Session
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		sess, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM learning_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return fmt.Errorf("lock session %s: %w", id, err)
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		sess.ID = id
		if err := s.writeSession(ctx, tx, sess, false); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *PostgresStore) writeSession(ctx context.Context, db dbtx, sess learning.Session, insert bool) error {
	answers := sess.Answers
	if answers == nil {
		answers = []learning.Answer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	questionIDs := sess.QuestionIDs
	if questionIDs == nil {
		questionIDs = []string{}
	}

	query := `UPDATE learning_sessions
		 SET user_id = $2, document_id = $3, question_ids = $4, answers = $5::jsonb,
		     status = $6, started_at = $7, completed_at = $8
		 WHERE id = $1`
	if insert {
		query = `INSERT INTO learning_sessions (` + sessionColumns + `)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)`
	}
	cmd, err := db.Exec(ctx, query,
		sess.ID, sess.UserID, sess.DocumentID, questionIDs, string(answersJSON),
		string(sess.Status), sess.StartedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, learning.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CompletedSessions(ctx context.Context, userID, documentID string) ([]learning.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM learning_sessions
		 WHERE user_id = $1 AND status = $2 AND ($3 = '' OR document_id = $3)
		 ORDER BY COALESCE(completed_at, started_at) ASC, id ASC`,
		userID, string(learning.SessionCompleted), documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []learning.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (learning.Session, error) {
	var sess learning.Session
	var answers []byte
	var status string
	if err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.DocumentID,
		&sess.QuestionIDs,
		&answers,
		&status,
		&sess.StartedAt,
		&sess.CompletedAt,
	); err != nil {
		return learning.Session{}, notFound(err)
	}
	sess.Status = learning.SessionStatus(status)
	if err := json.Unmarshal(answers, &sess.Answers); err != nil {
		return learning.Session{}, fmt.Errorf("decode answers: %w", err)
	}
	return sess, nil
}

// --- questions and pool ---

const questionColumns = `id, document_id, user_id, question_text, question_type, difficulty, topic,
	options, correct_answer, explanation, source_context, created_at`

const poolColumns = `id, document_id, user_id, topic, question_type, difficulty,
	times_answered, times_correct, COALESCE(is_mastered, false), last_used_at`

func (s *PostgresStore) SaveQuestions(ctx context.Context, qs []learning.Question) ([]learning.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	out := make([]learning.Question, 0, len(qs))
	batch := &pgx.Batch{}
	for _, q := range qs {
		q = normalizeQuestion(q, now)
		var options any
		if q.Options != nil {
			data, err := json.Marshal(q.Options)
			if err != nil {
				return nil, fmt.Errorf("marshal options: %w", err)
			}
			options = string(data)
		}
		batch.Queue(
			`INSERT INTO questions (`+questionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET
			   question_text = EXCLUDED.question_text,
			   options = EXCLUDED.options,
			   correct_answer = EXCLUDED.correct_answer,
			   explanation = EXCLUDED.explanation`,
			q.ID, q.DocumentID, q.UserID, q.Text, string(q.Type), string(q.Difficulty), q.Topic,
			options, q.CorrectAnswer, q.Explanation, nullIfEmpty(q.SourceContext), q.CreatedAt,
		)
		out = append(out, q)
	}

	results := s.pool.SendBatch(ctx, batch)
	for range out {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("insert question: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetQuestions(ctx context.Context, ids []string) ([]learning.Question, error) {
	if len(ids) == 0 {
		return []learning.Question{}, nil
	}
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1) ORDER BY array_position($1, id)`, ids)
}

func (s *PostgresStore) DocumentQuestions(ctx context.Context, documentID string) ([]learning.Question, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE document_id = $1 ORDER BY created_at, id`, documentID)
}

func (s *PostgresStore) queryQuestions(ctx context.Context, query string, args ...any) ([]learning.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := []learning.Question{}
	for rows.Next() {
		var q learning.Question
		var qType, difficulty string
		var options []byte
		var sourceContext *string
		if err := rows.Scan(
			&q.ID, &q.DocumentID, &q.UserID, &q.Text, &qType, &difficulty, &q.Topic,
			&options, &q.CorrectAnswer, &q.Explanation, &sourceContext, &q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = learning.ParseQuestionType(qType)
		q.Difficulty = learning.ParseDifficulty(difficulty)
		if sourceContext != nil {
			q.SourceContext = *sourceContext
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetQuestionPool(ctx context.Context, documentID, userID string, f learning.PoolFilter) ([]learning.PoolEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+poolColumns+`
		 FROM questions
		 WHERE document_id = $1 AND user_id = $2 AND ($3 OR COALESCE(is_mastered, false) = false)
		 ORDER BY created_at, id`,
		documentID, userID, f.IncludeMastered,
	)
	if err != nil {
		return nil, fmt.Errorf("query pool: %w", err)
	}
	defer rows.Close()

	out := []learning.PoolEntry{}
	for rows.Next() {
		e, err := scanPoolEntry(rows)
		if err != nil {
			return nil, err
		}
		// Type, topic and difficulty filters use the same folding as the
		// memory store, so they are applied here rather than in SQL.
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdatePoolEntry(ctx context.Context, questionID string, mutate func(*learning.PoolEntry) error) (learning.PoolEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var out learning.PoolEntry
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		e, err := scanPoolEntry(tx.QueryRow(ctx,
			`SELECT `+poolColumns+` FROM questions WHERE id = $1 FOR UPDATE`, questionID))
		if err != nil {
			return fmt.Errorf("lock pool entry %s: %w", questionID, err)
		}
		wasMastered := e.IsMastered
		if err := mutate(&e); err != nil {
			return err
		}
		e.IsMastered = e.IsMastered || wasMastered

		if _, err := tx.Exec(ctx,
			`UPDATE questions
			 SET times_answered = $2, times_correct = $3, is_mastered = $4, last_used_at = $5
			 WHERE id = $1`,
			questionID, e.TimesAnswered, e.TimesCorrect, e.IsMastered, e.LastUsedAt,
		); err != nil {
			return fmt.Errorf("update pool entry: %w", err)
		}
		out = e
		return nil
	})
	return out, err
}

func (s *PostgresStore) MarkQuestionsUsed(ctx context.Context, ids []string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE questions SET last_used_at = $2 WHERE id = ANY($1)`, ids, at); err != nil {
		return fmt.Errorf("mark questions used: %w", err)
	}
	return nil
}

func scanPoolEntry(row pgx.Row) (learning.PoolEntry, error) {
	var e learning.PoolEntry
	var qType, difficulty string
	if err := row.Scan(
		&e.QuestionID, &e.DocumentID, &e.UserID, &e.Topic, &qType, &difficulty,
		&e.TimesAnswered, &e.TimesCorrect, &e.IsMastered, &e.LastUsedAt,
	); err != nil {
		return learning.PoolEntry{}, notFound(err)
	}
	e.Type = learning.ParseQuestionType(qType)
	e.Difficulty = learning.ParseDifficulty(difficulty)
	return e, nil
}

// --- statistics ---

func (s *PostgresStore) GetQuestionStatistics(ctx context.Context, ids []string) (map[string]learning.QuestionStatistics, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	out := make(map[string]learning.QuestionStatistics, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT question_id, total_attempts, correct_attempts, empirical_difficulty, avg_time_taken,
		        COALESCE(last_updated, 'epoch'::timestamptz)
		 FROM question_statistics WHERE question_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st learning.QuestionStatistics
		if err := rows.Scan(&st.QuestionID, &st.TotalAttempts, &st.CorrectAttempts,
			&st.EmpiricalDifficulty, &st.AvgTimeTaken, &st.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		out[st.QuestionID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statistics: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateQuestionStatistics(ctx context.Context, questionID string, mutate func(*learning.QuestionStatistics) error) (learning.QuestionStatistics, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var out learning.QuestionStatistics
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO question_statistics (question_id) VALUES ($1) ON CONFLICT (question_id) DO NOTHING`,
			questionID,
		); err != nil {
			return fmt.Errorf("ensure statistics: %w", err)
		}

		st := learning.QuestionStatistics{QuestionID: questionID}
		if err := tx.QueryRow(ctx,
			`SELECT total_attempts, correct_attempts, empirical_difficulty, avg_time_taken,
			        COALESCE(last_updated, 'epoch'::timestamptz)
			 FROM question_statistics WHERE question_id = $1 FOR UPDATE`, questionID,
		).Scan(&st.TotalAttempts, &st.CorrectAttempts, &st.EmpiricalDifficulty, &st.AvgTimeTaken, &st.LastUpdated); err != nil {
			return fmt.Errorf("lock statistics: %w", err)
		}
		if err := mutate(&st); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE question_statistics
			 SET total_attempts = $2, correct_attempts = $3, empirical_difficulty = $4,
			     avg_time_taken = $5, last_updated = $6
			 WHERE question_id = $1`,
			questionID, st.TotalAttempts, st.CorrectAttempts, st.EmpiricalDifficulty, st.AvgTimeTaken, st.LastUpdated,
		); err != nil {
			return fmt.Errorf("update statistics: %w", err)
		}
		st.QuestionID = questionID
		out = st
		return nil
	})
	return out, err
}

// --- review items ---

const reviewColumns = `id, user_id, question_id, document_id, topic, difficulty, interval_days, repetitions,
	ease_factor, next_review_date, last_reviewed_at, total_reviews, successful_reviews, average_quality,
	created_at, updated_at`

func (s *PostgresStore) GetReviewItem(ctx context.Context, userID, questionID string) (*learning.ReviewItem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	item, err := scanReviewItem(s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM review_items WHERE user_id = $1 AND question_id = $2`,
		userID, questionID))
	if err != nil {
		return nil, fmt.Errorf("get review item %s/%s: %w", userID, questionID, err)
	}
	return &item, nil
}

func (s *PostgresStore) UpdateReviewItem(ctx context.Context, userID, questionID string, mutate func(*learning.ReviewItem, bool) error) (learning.ReviewItem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var out learning.ReviewItem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// The row may not exist yet, so serialise on the key instead of the row.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "review:"+userID+":"+questionID); err != nil {
			return fmt.Errorf("lock review key: %w", err)
		}

		item, err := scanReviewItem(tx.QueryRow(ctx,
			`SELECT `+reviewColumns+` FROM review_items WHERE user_id = $1 AND question_id = $2`,
			userID, questionID))
		exists := err == nil
		if err != nil && !errors.Is(err, learning.ErrNotFound) {
			return fmt.Errorf("read review item: %w", err)
		}
		if !exists {
			item = learning.ReviewItem{}
		}
		if err := mutate(&item, exists); err != nil {
			return err
		}
		item.UserID, item.QuestionID = userID, questionID
		if item.ID == "" {
			item.ID = uuid.NewString()
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO review_items (`+reviewColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (user_id, question_id) DO UPDATE SET
			   document_id = EXCLUDED.document_id,
			   topic = EXCLUDED.topic,
			   difficulty = EXCLUDED.difficulty,
			   interval_days = EXCLUDED.interval_days,
			   repetitions = EXCLUDED.repetitions,
			   ease_factor = EXCLUDED.ease_factor,
			   next_review_date = EXCLUDED.next_review_date,
			   last_reviewed_at = EXCLUDED.last_reviewed_at,
			   total_reviews = EXCLUDED.total_reviews,
			   successful_reviews = EXCLUDED.successful_reviews,
			   average_quality = EXCLUDED.average_quality,
			   updated_at = EXCLUDED.updated_at`,
			item.ID, item.UserID, item.QuestionID, item.DocumentID, item.Topic, string(item.Difficulty),
			item.Interval, item.Repetitions, item.EaseFactor, item.NextReviewDate, item.LastReviewedAt,
			item.TotalReviews, item.SuccessfulReviews, item.AverageQuality, item.CreatedAt, item.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert review item: %w", err)
		}
		out = item
		return nil
	})
	return out, err
}

func (s *PostgresStore) ListReviewItems(ctx context.Context, userID string, f learning.ReviewFilter) ([]learning.ReviewItem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var dueBefore *time.Time
	if !f.DueBefore.IsZero() {
		dueBefore = &f.DueBefore
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+reviewColumns+`
		 FROM review_items
		 WHERE user_id = $1
		   AND ($2 = '' OR document_id = $2)
		   AND ($3::timestamptz IS NULL OR next_review_date <= $3)
		 ORDER BY next_review_date ASC, question_id ASC`,
		userID, f.DocumentID, dueBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("query review items: %w", err)
	}
	defer rows.Close()

	var out []learning.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review items: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DueReviewCounts(ctx context.Context, t time.Time) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, COUNT(*) FROM review_items WHERE next_review_date <= $1 GROUP BY user_id`, t)
	if err != nil {
		return nil, fmt.Errorf("count due reviews: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var userID string
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("scan due count: %w", err)
		}
		out[userID] = n
	}
	return out, rows.Err()
}

func scanReviewItem(row pgx.Row) (learning.ReviewItem, error) {
	var item learning.ReviewItem
	var difficulty string
	if err := row.Scan(
		&item.ID, &item.UserID, &item.QuestionID, &item.DocumentID, &item.Topic, &difficulty,
		&item.Interval, &item.Repetitions, &item.EaseFactor, &item.NextReviewDate, &item.LastReviewedAt,
		&item.TotalReviews, &item.SuccessfulReviews, &item.AverageQuality, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return learning.ReviewItem{}, notFound(err)
	}
	item.Difficulty = learning.ParseDifficulty(difficulty)
	return item, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return learning.ErrNotFound
	}
	return err
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
