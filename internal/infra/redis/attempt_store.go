package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// AttemptStore persists attempts in Redis.
//
// Layout:
//
//	attempt:{id}                              hash: student, quiz, completed, published, version, revision, doc
//	attempt:{id}:answers                      hash: {questionID} -> JSON array of option ids
//	quiz:{quizID}:student:{studentID}:active  string: attempt id
//	quiz:{quizID}:student:{studentID}:done    string: attempt id
//	quiz:{quizID}:completed                   set of completed attempt ids
//
// Every state transition runs as a Lua script so the index checks and the write
// happen atomically on the server. version counts lifecycle writes and revision
// counts answer writes, so an answer save never fails a concurrent away or submit.
type AttemptStore struct {
	client *redis.Client
}

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

// attemptDoc holds the fields that only change through Save.
type attemptDoc struct {
	ID                     string                  `json:"id"`
	QuizID                 string                  `json:"quizId"`
	StudentID              string                  `json:"studentId"`
	StartTime              time.Time               `json:"startTime"`
	EndTime                *time.Time              `json:"endTime,omitempty"`
	Score                  int                     `json:"score"`
	MaxScore               int                     `json:"maxScore"`
	TimeAway               domain.TimeAway         `json:"timeAway"`
	SubmittedAutomatically bool                    `json:"submittedAutomatically"`
	SubmissionReason       domain.SubmissionReason `json:"submissionReason,omitempty"`
}

var createScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then return {0, existing} end
if redis.call('EXISTS', KEYS[2]) == 1 then return {-1, ''} end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[3], 'student', ARGV[2], 'quiz', ARGV[3], 'completed', '0', 'published', '0', 'version', '1', 'revision', '0', 'doc', ARGV[4])
for i = 5, #ARGV, 2 do
  redis.call('HSET', KEYS[4], ARGV[i], ARGV[i + 1])
end
return {1, ARGV[1]}
`)

var setAnswerScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'student')
if not owner or owner ~= ARGV[1] then return -1 end
if redis.call('HGET', KEYS[1], 'completed') == '1' then return -2 end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
return redis.call('HINCRBY', KEYS[1], 'revision', 1)
`)

var saveScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'student')
if not owner or owner ~= ARGV[1] then return -1 end
if redis.call('HGET', KEYS[1], 'completed') == '1' then return -2 end
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[2] then return -3 end
if ARGV[6] and (redis.call('HGET', KEYS[1], 'revision') or '') ~= ARGV[6] then return -5 end
if ARGV[4] == '1' then
  if redis.call('EXISTS', KEYS[3]) == 1 then return -4 end
  redis.call('DEL', KEYS[2])
  redis.call('SET', KEYS[3], ARGV[5])
  redis.call('SADD', KEYS[4], ARGV[5])
end
redis.call('HSET', KEYS[1], 'doc', ARGV[3], 'completed', ARGV[4])
return redis.call('HINCRBY', KEYS[1], 'version', 1)
`)

var publishScript = redis.NewScript(`
local changed = 0
for i = 1, #KEYS do
  if redis.call('HGET', KEYS[i], 'published') == '0' then
    redis.call('HSET', KEYS[i], 'published', '1')
    changed = changed + 1
  end
end
return changed
`)

func (s *AttemptStore) CreateActive(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	doc, err := json.Marshal(docFrom(attempt))
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("encode attempt: %w", err)
	}
	args := []interface{}{attempt.ID, attempt.StudentID, attempt.QuizID, doc}
	for questionID, selected := range attempt.Answers {
		encoded, err := encodeSelection(selected)
		if err != nil {
			return domain.Attempt{}, false, err
		}
		args = append(args, questionID, encoded)
	}
	keys := []string{
		activeKey(attempt.QuizID, attempt.StudentID),
		doneKey(attempt.QuizID, attempt.StudentID),
		attemptKey(attempt.ID),
		answersKey(attempt.ID),
	}

	res, err := createScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("create attempt: %w", err)
	}
	if len(res) != 2 {
		return domain.Attempt{}, false, fmt.Errorf("create attempt: unexpected reply %v", res)
	}
	status, _ := res[0].(int64)
	id, _ := res[1].(string)
	switch status {
	case -1:
		return domain.Attempt{}, false, domain.ErrAlreadyCompleted
	case 0:
		existing, err := s.load(ctx, id)
		return existing, false, err
	}
	stored, err := s.load(ctx, id)
	return stored, true, err
}

func (s *AttemptStore) FindCompleted(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	id, err := s.client.Get(ctx, doneKey(quizID, studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("find completed attempt: %w", err)
	}
	return s.load(ctx, id)
}

func (s *AttemptStore) GetOwned(ctx context.Context, attemptID, studentID string) (domain.Attempt, error) {
	attempt, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.StudentID != studentID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) SetAnswer(ctx context.Context, attemptID, studentID, questionID string, optionIDs []string) error {
	encoded, err := encodeSelection(optionIDs)
	if err != nil {
		return err
	}
	status, err := setAnswerScript.Run(ctx, s.client,
		[]string{attemptKey(attemptID), answersKey(attemptID)},
		studentID, questionID, encoded,
	).Int64()
	if err != nil {
		return fmt.Errorf("set answer: %w", err)
	}
	switch status {
	case -1:
		return domain.ErrAttemptNotFound
	case -2:
		return fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
	}
	return nil
}

func (s *AttemptStore) Save(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	status, err := s.runSave(ctx, attempt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := saveStatusErr(status); err != nil {
		return domain.Attempt{}, err
	}
	return s.load(ctx, attempt.ID)
}

// maxSealRetries bounds how often Seal re-grades after answers moved underneath it.
const maxSealRetries = 5

// Seal grades the stored answers and completes the attempt. The write carries the
// answer revision it graded; if an answer landed in between, it grades again.
func (s *AttemptStore) Seal(ctx context.Context, attempt domain.Attempt, grade domain.Grader) (domain.Attempt, error) {
	attempt.IsCompleted = true
	for i := 0; i < maxSealRetries; i++ {
		current, revision, err := s.read(ctx, attempt.ID)
		if err != nil {
			return domain.Attempt{}, err
		}
		if current.StudentID != attempt.StudentID {
			return domain.Attempt{}, domain.ErrAttemptNotFound
		}
		attempt.Score, attempt.MaxScore = grade(current.Answers)

		status, err := s.runSave(ctx, attempt, revision)
		if err != nil {
			return domain.Attempt{}, err
		}
		if status == -5 {
			continue
		}
		if err := saveStatusErr(status); err != nil {
			return domain.Attempt{}, err
		}
		return s.load(ctx, attempt.ID)
	}
	return domain.Attempt{}, fmt.Errorf("%w: answers kept changing while sealing", domain.ErrInvalidState)
}

func (s *AttemptStore) runSave(ctx context.Context, attempt domain.Attempt, revision ...string) (int64, error) {
	doc, err := json.Marshal(docFrom(attempt))
	if err != nil {
		return 0, fmt.Errorf("encode attempt: %w", err)
	}
	completed := "0"
	if attempt.IsCompleted {
		completed = "1"
	}
	keys := []string{
		attemptKey(attempt.ID),
		activeKey(attempt.QuizID, attempt.StudentID),
		doneKey(attempt.QuizID, attempt.StudentID),
		completedSetKey(attempt.QuizID),
	}
	args := []interface{}{attempt.StudentID, strconv.FormatInt(attempt.Version, 10), doc, completed, attempt.ID}
	for _, rev := range revision {
		args = append(args, rev)
	}
	status, err := saveScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("save attempt: %w", err)
	}
	return status, nil
}

func saveStatusErr(status int64) error {
	switch status {
	case -1:
		return domain.ErrAttemptNotFound
	case -2:
		return fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
	case -3:
		return fmt.Errorf("%w: attempt changed concurrently", domain.ErrInvalidState)
	case -4:
		return domain.ErrAlreadyCompleted
	}
	return nil
}

func (s *AttemptStore) PublishCompleted(ctx context.Context, quizID string) (int, error) {
	ids, err := s.client.SMembers(ctx, completedSetKey(quizID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list completed attempts: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, attemptKey(id))
	}
	changed, err := publishScript.Run(ctx, s.client, keys).Int()
	if err != nil {
		return 0, fmt.Errorf("publish results: %w", err)
	}
	return changed, nil
}

func (s *AttemptStore) ListCompleted(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	ids, err := s.client.SMembers(ctx, completedSetKey(quizID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	return s.loadMany(ctx, ids)
}

func (s *AttemptStore) ListByStudent(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	ids, err := s.client.MGet(ctx, doneKey(quizID, studentID), activeKey(quizID, studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list student attempts: %w", err)
	}
	found := make([]string, 0, len(ids))
	for _, id := range ids {
		if str, ok := id.(string); ok {
			found = append(found, str)
		}
	}
	return s.loadMany(ctx, found)
}

func (s *AttemptStore) loadMany(ctx context.Context, ids []string) ([]domain.Attempt, error) {
	out := make([]domain.Attempt, 0, len(ids))
	for _, id := range ids {
		attempt, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, nil
}

func (s *AttemptStore) load(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, _, err := s.read(ctx, attemptID)
	return attempt, err
}

// read returns the attempt and its answer revision from one MULTI block.
func (s *AttemptStore) read(ctx context.Context, attemptID string) (domain.Attempt, string, error) {
	pipe := s.client.TxPipeline()
	metaCmd := pipe.HGetAll(ctx, attemptKey(attemptID))
	answersCmd := pipe.HGetAll(ctx, answersKey(attemptID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Attempt{}, "", fmt.Errorf("load attempt %s: %w", attemptID, err)
	}
	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.Attempt{}, "", domain.ErrAttemptNotFound
	}

	var doc attemptDoc
	if err := json.Unmarshal([]byte(meta["doc"]), &doc); err != nil {
		return domain.Attempt{}, "", fmt.Errorf("decode attempt %s: %w", attemptID, err)
	}
	version, err := strconv.ParseInt(meta["version"], 10, 64)
	if err != nil {
		return domain.Attempt{}, "", fmt.Errorf("decode attempt %s version: %w", attemptID, err)
	}

	answers := make(map[string][]string, len(answersCmd.Val()))
	for questionID, raw := range answersCmd.Val() {
		var selected []string
		if err := json.Unmarshal([]byte(raw), &selected); err != nil {
			return domain.Attempt{}, "", fmt.Errorf("decode answer %s/%s: %w", attemptID, questionID, err)
		}
		if selected == nil {
			selected = []string{}
		}
		answers[questionID] = selected
	}

	return domain.Attempt{
		ID:                     doc.ID,
		QuizID:                 doc.QuizID,
		StudentID:              doc.StudentID,
		StartTime:              doc.StartTime,
		EndTime:                doc.EndTime,
		IsCompleted:            meta["completed"] == "1",
		Answers:                answers,
		Score:                  doc.Score,
		MaxScore:               doc.MaxScore,
		TimeAway:               doc.TimeAway,
		SubmittedAutomatically: doc.SubmittedAutomatically,
		SubmissionReason:       doc.SubmissionReason,
		IsScorePublished:       meta["published"] == "1",
		Version:                version,
	}, meta["revision"], nil
}

func docFrom(a domain.Attempt) attemptDoc {
	return attemptDoc{
		ID:                     a.ID,
		QuizID:                 a.QuizID,
		StudentID:              a.StudentID,
		StartTime:              a.StartTime,
		EndTime:                a.EndTime,
		Score:                  a.Score,
		MaxScore:               a.MaxScore,
		TimeAway:               a.TimeAway,
		SubmittedAutomatically: a.SubmittedAutomatically,
		SubmissionReason:       a.SubmissionReason,
	}
}

func encodeSelection(optionIDs []string) (string, error) {
	if optionIDs == nil {
		optionIDs = []string{}
	}
	raw, err := json.Marshal(optionIDs)
	if err != nil {
		return "", fmt.Errorf("encode selection: %w", err)
	}
	return string(raw), nil
}

func attemptKey(attemptID string) string {
	return "attempt:" + attemptID
}

func answersKey(attemptID string) string {
	return "attempt:" + attemptID + ":answers"
}

func activeKey(quizID, studentID string) string {
	return "quiz:" + quizID + ":student:" + studentID + ":active"
}

func doneKey(quizID, studentID string) string {
	return "quiz:" + quizID + ":student:" + studentID + ":done"
}

func completedSetKey(quizID string) string {
	return "quiz:" + quizID + ":completed"
}
