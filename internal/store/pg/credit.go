package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"minedesk.org/internal/credit"
	"minedesk.org/internal/ids"
)

var _ credit.Store = (*Store)(nil)

func (s *Store) LatestScore(ctx context.Context, orgID string) (credit.Score, error) {
	if s.db == nil {
		return credit.Score{}, errors.New("database connection unavailable")
	}
	var (
		score      credit.Score
		rawFactors []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, value, grade, factors, model_version, computed_at
		from credit_scores
		where organization_id = $1
		order by computed_at desc, id desc
		limit 1
	`, orgID).Scan(&score.ID, &score.OrganizationID, &score.Value, &score.Grade, &rawFactors, &score.ModelVersion, &score.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.Score{}, credit.ErrNotFound
	}
	if err != nil {
		return credit.Score{}, err
	}
	if len(rawFactors) > 0 {
		if err := json.Unmarshal(rawFactors, &score.Factors); err != nil {
			return credit.Score{}, fmt.Errorf("decode factors: %w", err)
		}
	}
	return score, nil
}

func (s *Store) InsertScore(ctx context.Context, score credit.Score) (credit.Score, error) {
	if s.db == nil {
		return credit.Score{}, errors.New("database connection unavailable")
	}
	factors, err := json.Marshal(score.Factors)
	if err != nil {
		return credit.Score{}, fmt.Errorf("marshal factors: %w", err)
	}

	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into credit_scores (id, organization_id, value, grade, factors, model_version, computed_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, organization_id, value, grade, model_version, computed_at
	`, id, score.OrganizationID, score.Value, score.Grade, factors, score.ModelVersion, score.ComputedAt)
	out := credit.Score{Factors: score.Factors}
	if err := row.Scan(&out.ID, &out.OrganizationID, &out.Value, &out.Grade, &out.ModelVersion, &out.ComputedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return credit.Score{}, credit.ErrNotFound
		}
		return credit.Score{}, err
	}
	return out, nil
}
