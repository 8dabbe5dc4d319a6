package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repository persists bank entries in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const questionColumns = `id, competition_id, seq_no, prompt, question_type, correct_answer,
	choices, matching_pairs, media_type, media_key`

// ListByCompetition returns the bank in bank order.
func (r *Repository) ListByCompetition(ctx context.Context, competitionID int64) ([]Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE competition_id = $1
		ORDER BY seq_no ASC, id ASC
	`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0, 16)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, competitionID, questionID int64) (*Question, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE competition_id = $1 AND id = $2
	`, competitionID, questionID)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

func (r *Repository) Create(ctx context.Context, q Question) (*Question, error) {
	args, err := questionArgs(q)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO questions (
			competition_id, seq_no, prompt, question_type, correct_answer,
			choices, matching_pairs, media_type, media_key
		)
		VALUES (
			$1,
			CASE WHEN $2 > 0 THEN $2 ELSE (SELECT COALESCE(MAX(seq_no), 0) + 1 FROM questions WHERE competition_id = $1) END,
			$3, $4, $5, $6::jsonb, $7::jsonb, $8, $9
		)
		RETURNING `+questionColumns,
		append([]any{q.CompetitionID, q.SeqNo}, args...)...,
	)
	out, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, q Question) (*Question, error) {
	args, err := questionArgs(q)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE questions
		SET seq_no = CASE WHEN $3 > 0 THEN $3 ELSE seq_no END,
		    prompt = $4,
		    question_type = $5,
		    correct_answer = $6,
		    choices = $7::jsonb,
		    matching_pairs = $8::jsonb,
		    media_type = $9,
		    media_key = $10,
		    updated_at = now()
		WHERE competition_id = $1 AND id = $2
		RETURNING `+questionColumns,
		append([]any{q.CompetitionID, q.ID, q.SeqNo}, args...)...,
	)
	out, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, competitionID, questionID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE competition_id = $1 AND id = $2`, competitionID, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// HasResults reports whether anyone already submitted for the competition.
func (r *Repository) HasResults(ctx context.Context, competitionID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM results WHERE competition_id = $1)`, competitionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check results: %w", err)
	}
	return exists, nil
}

// questionArgs flattens the body into
// prompt, type, correct_answer, choices, matching_pairs, media_type, media_key.
func questionArgs(q Question) ([]any, error) {
	var (
		correct string
		choices = []string{}
		pairs   = []Pair{}
	)
	switch b := q.Body.(type) {
	case Text:
		correct = b.CorrectAnswer
	case MultipleChoice:
		correct = b.CorrectAnswer
		choices = b.Choices
	case Matching:
		pairs = b.Pairs
	default:
		return nil, fmt.Errorf("%w: question type is required", ErrInvalidQuestion)
	}
	choicesJSON, err := json.Marshal(choices)
	if err != nil {
		return nil, fmt.Errorf("marshal choices: %w", err)
	}
	pairsJSON, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("marshal pairs: %w", err)
	}
	var mediaType, mediaKey any
	if q.Media != nil {
		mediaType = string(q.Media.Type)
		mediaKey = q.Media.Key
	}
	return []any{q.Prompt, string(q.Kind()), correct, string(choicesJSON), string(pairsJSON), mediaType, mediaKey}, nil
}

func scanQuestion(scanner interface{ Scan(dest ...any) error }) (*Question, error) {
	var (
		q           Question
		kind        string
		correct     string
		choicesRaw  []byte
		pairsRaw    []byte
		mediaType   sql.NullString
		mediaKey    sql.NullString
		choices     []string
		matchingSet []Pair
	)
	if err := scanner.Scan(&q.ID, &q.CompetitionID, &q.SeqNo, &q.Prompt, &kind, &correct,
		&choicesRaw, &pairsRaw, &mediaType, &mediaKey); err != nil {
		return nil, err
	}
	if len(choicesRaw) > 0 {
		if err := json.Unmarshal(choicesRaw, &choices); err != nil {
			return nil, fmt.Errorf("decode choices of question %d: %w", q.ID, err)
		}
	}
	if len(pairsRaw) > 0 {
		if err := json.Unmarshal(pairsRaw, &matchingSet); err != nil {
			return nil, fmt.Errorf("decode pairs of question %d: %w", q.ID, err)
		}
	}
	body, err := NewBody(Kind(kind), correct, choices, matchingSet)
	if err != nil {
		return nil, fmt.Errorf("question %d: %w", q.ID, err)
	}
	q.Body = body
	if mediaType.Valid && mediaKey.Valid && mediaKey.String != "" {
		q.Media = &Media{Type: MediaType(mediaType.String), Key: mediaKey.String}
	}
	return &q, nil
}
