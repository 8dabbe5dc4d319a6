package olympiad

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const competitionColumns = `id, title, description, difficulty, duration_seconds, randomize_questions,
	questions_per_participant, is_published, is_completed, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, in CompetitionInput) (*Competition, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO competitions (
			title, description, difficulty, duration_seconds, randomize_questions, questions_per_participant
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+competitionColumns,
		in.Title, in.Description, in.Difficulty, in.DurationSeconds, in.RandomizeQuestions, in.QuestionsPerParticipant,
	)
	c, err := scanCompetition(row)
	if err != nil {
		return nil, fmt.Errorf("insert competition: %w", err)
	}
	return c, nil
}

func (r *Repository) Update(ctx context.Context, id int64, in CompetitionInput) (*Competition, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE competitions
		SET title = $2,
		    description = $3,
		    difficulty = $4,
		    duration_seconds = $5,
		    randomize_questions = $6,
		    questions_per_participant = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+competitionColumns,
		id, in.Title, in.Description, in.Difficulty, in.DurationSeconds, in.RandomizeQuestions, in.QuestionsPerParticipant,
	)
	c, err := scanCompetition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("update competition: %w", err)
	}
	return c, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Competition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+competitionColumns+` FROM competitions WHERE id = $1`, id)
	c, err := scanCompetition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("load competition: %w", err)
	}
	return c, nil
}

func (r *Repository) List(ctx context.Context, publishedOnly bool) ([]Competition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+competitionColumns+`
		FROM competitions
		WHERE ($1 = FALSE OR is_published = TRUE)
		ORDER BY created_at DESC, id DESC
	`, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	defer rows.Close()

	out := make([]Competition, 0, 16)
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competition: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competitions: %w", err)
	}
	return out, nil
}

func (r *Repository) SetPublished(ctx context.Context, id int64, published bool) error {
	return r.setFlag(ctx, `UPDATE competitions SET is_published = $2, updated_at = now() WHERE id = $1`, id, published)
}

func (r *Repository) SetCompleted(ctx context.Context, id int64, completed bool) error {
	return r.setFlag(ctx, `UPDATE competitions SET is_completed = $2, updated_at = now() WHERE id = $1`, id, completed)
}

func (r *Repository) setFlag(ctx context.Context, query string, id int64, v bool) error {
	res, err := r.db.ExecContext(ctx, query, id, v)
	if err != nil {
		return fmt.Errorf("update competition flag: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrCompetitionNotFound
	}
	return nil
}

// ListStandings loads every result of a competition with the participant's
// identity, unranked.
func (r *Repository) ListStandings(ctx context.Context, competitionID int64) ([]Standing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.participant_id, u.full_name, u.email, r.score, r.completed_at, r.place, r.certificate_key
		FROM results r
		JOIN users u ON u.id = r.participant_id
		WHERE r.competition_id = $1
		ORDER BY r.completed_at ASC, r.id ASC
	`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}
	defer rows.Close()

	out := make([]Standing, 0, 64)
	for rows.Next() {
		var (
			s       Standing
			place   sql.NullInt64
			certKey sql.NullString
		)
		if err := rows.Scan(&s.ResultID, &s.ParticipantID, &s.ParticipantName, &s.Email, &s.Score, &s.CompletedAt, &place, &certKey); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		if place.Valid {
			p := int(place.Int64)
			s.Place = &p
		}
		if certKey.Valid {
			k := certKey.String
			s.CertificateKey = &k
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate standings: %w", err)
	}
	return out, nil
}

// SavePlacement stores the final place and the certificate key, which is
// NULL when rendering failed.
func (r *Repository) SavePlacement(ctx context.Context, resultID int64, place int, certificateKey *string) error {
	var key any
	if certificateKey != nil {
		key = *certificateKey
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE results
		SET place = $2,
		    certificate_key = $3
		WHERE id = $1
	`, resultID, place, key)
	if err != nil {
		return fmt.Errorf("save placement of result %d: %w", resultID, err)
	}
	return nil
}

func scanCompetition(scanner interface{ Scan(dest ...any) error }) (*Competition, error) {
	var c Competition
	if err := scanner.Scan(&c.ID, &c.Title, &c.Description, &c.Difficulty, &c.DurationSeconds, &c.RandomizeQuestions,
		&c.QuestionsPerParticipant, &c.IsPublished, &c.IsCompleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
