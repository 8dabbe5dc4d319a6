package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Result struct {
	ID             int64            `json:"id"`
	CompetitionID  int64            `json:"competition_id"`
	ParticipantID  int64            `json:"participant_id"`
	Score          int              `json:"score"`
	Answers        map[int64]string `json:"answers"`
	Place          *int             `json:"place,omitempty"`
	CertificateKey *string          `json:"certificate_key,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const resultColumns = `id, competition_id, participant_id, score, answers, place, certificate_key, completed_at, updated_at`

// Upsert stores one row per participant and competition. A resubmission
// replaces score and answers but keeps the original completed_at.
func (r *Repository) Upsert(ctx context.Context, competitionID, participantID int64, score int, answers map[int64]string) (*Result, error) {
	payload, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO results (competition_id, participant_id, score, answers, completed_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now(), now())
		ON CONFLICT (competition_id, participant_id)
		DO UPDATE SET
			score = EXCLUDED.score,
			answers = EXCLUDED.answers,
			updated_at = now()
		RETURNING `+resultColumns,
		competitionID, participantID, score, string(payload),
	)
	res, err := scanResult(row)
	if err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}
	return res, nil
}

func (r *Repository) GetByParticipant(ctx context.Context, competitionID, participantID int64) (*Result, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+`
		FROM results
		WHERE competition_id = $1 AND participant_id = $2
	`, competitionID, participantID)
	res, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}
	return res, nil
}

func scanResult(scanner interface{ Scan(dest ...any) error }) (*Result, error) {
	var (
		res        Result
		answersRaw []byte
		place      sql.NullInt64
		certKey    sql.NullString
	)
	if err := scanner.Scan(&res.ID, &res.CompetitionID, &res.ParticipantID, &res.Score, &answersRaw,
		&place, &certKey, &res.CompletedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.Answers = map[int64]string{}
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of result %d: %w", res.ID, err)
		}
	}
	if place.Valid {
		p := int(place.Int64)
		res.Place = &p
	}
	if certKey.Valid {
		k := certKey.String
		res.CertificateKey = &k
	}
	return &res, nil
}
