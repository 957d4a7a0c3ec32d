package state

import (
	"database/sql"
	"fmt"

	"github.com/elys-network/levvault/internal/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// SaveEvents appends events to the store. Events already stored under the same
// sequence number are skipped, so the caller can resend a batch after a failure.
func SaveEvents(batch []events.Event) (int, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO vault_events (
			seq, kind, emitter, event_time, from_address, to_address,
			sender, receiver, owner, amount, shares, weights, label
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (seq) DO NOTHING;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range batch {
		res, err := stmt.Exec(
			int64(e.Seq), string(e.Kind), e.Emitter.Hex(), e.Time,
			e.From.Hex(), e.To.Hex(), e.Sender.Hex(), e.Receiver.Hex(), e.Owner.Hex(),
			numeric(e.Amount), numeric(e.Shares), pq.Array(toInt64s(e.Weights)), e.Label,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert event %d: %w", e.Seq, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	log.Debug().Int("batch", len(batch)).Int("inserted", inserted).Msg("Saved vault events")
	return inserted, nil
}

// LastEventSeq returns the highest stored sequence number, 0 when empty.
func LastEventSeq() (uint64, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}
	var seq sql.NullInt64
	if err := DB.QueryRow(`SELECT MAX(seq) FROM vault_events;`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to get last event seq: %w", err)
	}
	return uint64(seq.Int64), nil
}

// GetEvents returns up to limit of the latest events, newest first. An empty
// kind matches every event.
func GetEvents(limit int, kind events.Kind) ([]events.Event, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := DB.Query(`
		SELECT seq, kind, emitter, event_time, from_address, to_address,
		       sender, receiver, owner, amount::TEXT, shares::TEXT, weights, COALESCE(label, '')
		FROM vault_events
		WHERE $1 = '' OR kind = $1
		ORDER BY seq DESC
		LIMIT $2;`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e                                        events.Event
			seq                                      int64
			k, emitter, from, to, sender, recv, ownr string
			amount, shares                           string
			weights                                  []int64
		)
		if err := rows.Scan(&seq, &k, &emitter, &e.Time, &from, &to, &sender, &recv, &ownr,
			&amount, &shares, pq.Array(&weights), &e.Label); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Seq = uint64(seq)
		e.Kind = events.Kind(k)
		e.Emitter = common.HexToAddress(emitter)
		e.From = common.HexToAddress(from)
		e.To = common.HexToAddress(to)
		e.Sender = common.HexToAddress(sender)
		e.Receiver = common.HexToAddress(recv)
		e.Owner = common.HexToAddress(ownr)
		e.Weights = toUint64s(weights)
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if e.Shares, err = parseNumeric(shares); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
