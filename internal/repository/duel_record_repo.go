package repository

import (
	"context"
	"errors"
	"math/big"

	"typestake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordNotFound is returned when no settled record exists for a duel.
var ErrRecordNotFound = errors.New("duel record not found")

type DuelRecordRepository struct {
	db *pgxpool.Pool
}

func NewDuelRecordRepository(db *pgxpool.Pool) *DuelRecordRepository {
	return &DuelRecordRepository{db: db}
}

// Create stores a settled duel. Recording the same duel again returns the
// stored row; created reports whether this call inserted it.
func (r *DuelRecordRepository) Create(ctx context.Context, rec *domain.DuelRecord) (created bool, err error) {
	err = r.db.QueryRow(ctx,
		`INSERT INTO duel_records (duel_id, player1, player2, winner, stake, payout, player1_score, player2_score, tx_hash)
         VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
         ON CONFLICT (duel_id) DO NOTHING
         RETURNING id, created_at`,
		int64(rec.DuelID),
		rec.Player1,
		rec.Player2,
		rec.Winner,
		bigString(rec.Stake),
		bigString(rec.Payout),
		int64(rec.Player1Score),
		int64(rec.Player2Score),
		rec.TxHash,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	existing, err := r.GetByDuel(ctx, rec.DuelID)
	if err != nil {
		return false, err
	}
	*rec = *existing
	return false, nil
}

const recordColumns = `id, duel_id, player1, player2, winner, stake::text, payout::text, player1_score, player2_score, tx_hash, created_at`

// GetByDuel returns the settled record of a duel.
func (r *DuelRecordRepository) GetByDuel(ctx context.Context, duelID uint64) (*domain.DuelRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+` FROM duel_records WHERE duel_id = $1`,
		int64(duelID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanDuelRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrRecordNotFound
	}
	return recs[0], nil
}

// ListByWallet returns the wallet's settled duels, newest first.
func (r *DuelRecordRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]*domain.DuelRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+`
         FROM duel_records
         WHERE player1 = $1 OR player2 = $1
         ORDER BY created_at DESC, id DESC
         LIMIT $2`,
		wallet, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDuelRecords(rows)
}

func scanDuelRecords(rows pgx.Rows) ([]*domain.DuelRecord, error) {
	var recs []*domain.DuelRecord
	for rows.Next() {
		var (
			rec            domain.DuelRecord
			duelID         int64
			stake, payout  string
			score1, score2 int64
		)
		if err := rows.Scan(&rec.ID, &duelID, &rec.Player1, &rec.Player2, &rec.Winner,
			&stake, &payout, &score1, &score2, &rec.TxHash, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.DuelID = uint64(duelID)
		rec.Stake = parseBig(stake)
		rec.Payout = parseBig(payout)
		rec.Player1Score = uint64(score1)
		rec.Player2Score = uint64(score2)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
