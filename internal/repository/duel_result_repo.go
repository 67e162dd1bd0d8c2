package repository

import (
	"context"

	"typestake/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DuelResultRepository is the rendezvous table both duelists write to.
type DuelResultRepository struct {
	db *pgxpool.Pool
}

func NewDuelResultRepository(db *pgxpool.Pool) *DuelResultRepository {
	return &DuelResultRepository{db: db}
}

// Upsert writes one player's result. A resubmission replaces the previous row
// in a single statement, so readers see either the old row or the new one.
func (r *DuelResultRepository) Upsert(ctx context.Context, res *domain.DuelResult) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO duel_results (duel_id, player_address, score, wpm, misses, typos, submitted_at)
         VALUES ($1, $2, $3, $4, $5, $6, now())
         ON CONFLICT (duel_id, player_address) DO UPDATE SET
             score = EXCLUDED.score,
             wpm = EXCLUDED.wpm,
             misses = EXCLUDED.misses,
             typos = EXCLUDED.typos,
             submitted_at = EXCLUDED.submitted_at
         RETURNING submitted_at`,
		int64(res.DuelID),
		res.PlayerAddress,
		int64(res.Score),
		int64(res.WPM),
		int64(res.Misses),
		int64(res.Typos),
	).Scan(&res.SubmittedAt)
}

// ListByDuel returns 0, 1 or 2 results, earliest submission first.
func (r *DuelResultRepository) ListByDuel(ctx context.Context, duelID uint64) ([]*domain.DuelResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT duel_id, player_address, score, wpm, misses, typos, submitted_at
         FROM duel_results
         WHERE duel_id = $1
         ORDER BY submitted_at ASC, player_address ASC`,
		int64(duelID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.DuelResult
	for rows.Next() {
		var (
			id                        int64
			score, wpm, misses, typos int64
			out                       domain.DuelResult
		)
		if err := rows.Scan(&id, &out.PlayerAddress, &score, &wpm, &misses, &typos, &out.SubmittedAt); err != nil {
			return nil, err
		}
		out.DuelID = uint64(id)
		out.Score = uint64(score)
		out.WPM = uint64(wpm)
		out.Misses = uint64(misses)
		out.Typos = uint64(typos)
		res = append(res, &out)
	}
	return res, rows.Err()
}

// DeleteByDuel removes every result of the duel. Deleting nothing is not an error.
func (r *DuelResultRepository) DeleteByDuel(ctx context.Context, duelID uint64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM duel_results WHERE duel_id = $1`, int64(duelID))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
