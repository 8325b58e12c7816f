package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID                     string              `bun:"id,pk"`
	QuizID                 string              `bun:"quiz_id,notnull"`
	StudentID              string              `bun:"student_id,notnull"`
	StartTime              time.Time           `bun:"start_time,notnull"`
	EndTime                *time.Time          `bun:"end_time"`
	IsCompleted            bool                `bun:"is_completed,notnull"`
	Answers                map[string][]string `bun:"answers,type:jsonb,notnull"`
	Score                  int                 `bun:"score,notnull"`
	MaxScore               int                 `bun:"max_score,notnull"`
	AwayCount              int                 `bun:"away_count,notnull"`
	AwayTotalSeconds       float64             `bun:"away_total_seconds,notnull"`
	AwayLastStart          *time.Time          `bun:"away_last_start"`
	SubmittedAutomatically bool                `bun:"submitted_automatically,notnull"`
	SubmissionReason       string              `bun:"submission_reason,notnull"`
	IsScorePublished       bool                `bun:"is_score_published,notnull"`
	Version                int64               `bun:"version,notnull"`
	CreatedAt              time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// AttemptStore persists attempts in the quiz_attempts table.
// The unique (quiz_id, student_id) index serializes starts. Answer and lifecycle
// writes are single conditional UPDATEs; sealing takes a row lock.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateActive(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	row := toRow(attempt)
	row.Version = 1
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (quiz_id, student_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}

	existing := new(attemptRow)
	err = s.db.NewSelect().
		Model(existing).
		Where("quiz_id = ?", attempt.QuizID).
		Where("student_id = ?", attempt.StudentID).
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("read back attempt: %w", err)
	}
	if inserted == 0 && existing.IsCompleted {
		return domain.Attempt{}, false, domain.ErrAlreadyCompleted
	}
	return existing.toDomain(), inserted == 1, nil
}

func (s *AttemptStore) FindCompleted(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().
		Model(row).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Where("is_completed").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("find completed attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) GetOwned(ctx context.Context, attemptID, studentID string) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", attemptID).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) SetAnswer(ctx context.Context, attemptID, studentID, questionID string, optionIDs []string) error {
	if optionIDs == nil {
		optionIDs = []string{}
	}
	selection, err := json.Marshal(optionIDs)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	res, err := s.db.NewUpdate().
		Model((*attemptRow)(nil)).
		Set("answers = jsonb_set(answers, ARRAY[?]::text[], ?::jsonb, true)", questionID, string(selection)).
		Set("updated_at = now()").
		Where("id = ?", attemptID).
		Where("student_id = ?", studentID).
		Where("NOT is_completed").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set answer: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("set answer: %w", err)
	} else if n == 0 {
		return s.explainMiss(ctx, attemptID, studentID)
	}
	return nil
}

func (s *AttemptStore) Save(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	res, err := lifecycleUpdate(s.db, attempt).Exec(ctx)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("save attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("save attempt: %w", err)
	}
	if n == 0 {
		return domain.Attempt{}, s.explainMiss(ctx, attempt.ID, attempt.StudentID)
	}
	return s.GetOwned(ctx, attempt.ID, attempt.StudentID)
}

// Seal locks the row, grades the answers it holds and completes the attempt in
// one transaction. Answer writes queue behind the lock and then find the row sealed.
func (s *AttemptStore) Seal(ctx context.Context, attempt domain.Attempt, grade domain.Grader) (domain.Attempt, error) {
	attempt.IsCompleted = true
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		locked := new(attemptRow)
		err := tx.NewSelect().
			Model(locked).
			Where("id = ?", attempt.ID).
			Where("student_id = ?", attempt.StudentID).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if locked.IsCompleted {
			return fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
		}
		if locked.Version != attempt.Version {
			return fmt.Errorf("%w: attempt changed concurrently", domain.ErrInvalidState)
		}

		attempt.Score, attempt.MaxScore = grade(locked.toDomain().Answers)
		if _, err := lifecycleUpdate(tx, attempt).Exec(ctx); err != nil {
			return fmt.Errorf("seal attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.GetOwned(ctx, attempt.ID, attempt.StudentID)
}

// lifecycleUpdate writes every field except answers, guarded by the lifecycle version.
func lifecycleUpdate(db bun.IDB, attempt domain.Attempt) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*attemptRow)(nil)).
		Set("away_count = ?", attempt.TimeAway.Count).
		Set("away_total_seconds = ?", attempt.TimeAway.TotalDuration).
		Set("away_last_start = ?", nullableTime(attempt.TimeAway.LastAwayStart)).
		Set("is_completed = ?", attempt.IsCompleted).
		Set("end_time = ?", nullableTime(attempt.EndTime)).
		Set("score = ?", attempt.Score).
		Set("max_score = ?", attempt.MaxScore).
		Set("submitted_automatically = ?", attempt.SubmittedAutomatically).
		Set("submission_reason = ?", string(attempt.SubmissionReason)).
		Set("version = version + 1").
		Set("updated_at = now()").
		Where("id = ?", attempt.ID).
		Where("student_id = ?", attempt.StudentID).
		Where("version = ?", attempt.Version).
		Where("NOT is_completed")
}

func (s *AttemptStore) PublishCompleted(ctx context.Context, quizID string) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*attemptRow)(nil)).
		Set("is_score_published = TRUE").
		Set("updated_at = now()").
		Where("quiz_id = ?", quizID).
		Where("is_completed").
		Where("NOT is_score_published").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("publish results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("publish results: %w", err)
	}
	return int(n), nil
}

func (s *AttemptStore) ListCompleted(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("is_completed").
		OrderExpr("end_time DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	return toDomainList(rows), nil
}

func (s *AttemptStore) ListByStudent(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list student attempts: %w", err)
	}
	return toDomainList(rows), nil
}

// explainMiss turns a conditional write that matched no row into the domain error.
func (s *AttemptStore) explainMiss(ctx context.Context, attemptID, studentID string) error {
	current, err := s.GetOwned(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if current.IsCompleted {
		return fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
	}
	return fmt.Errorf("%w: attempt changed concurrently", domain.ErrInvalidState)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func toRow(a domain.Attempt) *attemptRow {
	answers := a.Answers
	if answers == nil {
		answers = map[string][]string{}
	}
	return &attemptRow{
		ID:                     a.ID,
		QuizID:                 a.QuizID,
		StudentID:              a.StudentID,
		StartTime:              a.StartTime,
		EndTime:                a.EndTime,
		IsCompleted:            a.IsCompleted,
		Answers:                answers,
		Score:                  a.Score,
		MaxScore:               a.MaxScore,
		AwayCount:              a.TimeAway.Count,
		AwayTotalSeconds:       a.TimeAway.TotalDuration,
		AwayLastStart:          a.TimeAway.LastAwayStart,
		SubmittedAutomatically: a.SubmittedAutomatically,
		SubmissionReason:       string(a.SubmissionReason),
		IsScorePublished:       a.IsScorePublished,
		Version:                a.Version,
	}
}

func (r *attemptRow) toDomain() domain.Attempt {
	answers := make(map[string][]string, len(r.Answers))
	for questionID, selected := range r.Answers {
		if selected == nil {
			selected = []string{}
		}
		answers[questionID] = selected
	}
	return domain.Attempt{
		ID:                     r.ID,
		QuizID:                 r.QuizID,
		StudentID:              r.StudentID,
		StartTime:              r.StartTime,
		EndTime:                r.EndTime,
		IsCompleted:            r.IsCompleted,
		Answers:                answers,
		Score:                  r.Score,
		MaxScore:               r.MaxScore,
		TimeAway: domain.TimeAway{
			Count:         r.AwayCount,
			TotalDuration: r.AwayTotalSeconds,
			LastAwayStart: r.AwayLastStart,
		},
		SubmittedAutomatically: r.SubmittedAutomatically,
		SubmissionReason:       domain.SubmissionReason(r.SubmissionReason),
		IsScorePublished:       r.IsScorePublished,
		Version:                r.Version,
	}
}

func toDomainList(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}
