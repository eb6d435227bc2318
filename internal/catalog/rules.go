package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"recsched/internal/rule"
)

// Rules is the rule store view of a Store.
type Rules struct{ s *Store }

func (s *Store) Rules() Rules { return Rules{s: s} }

// FindByID returns the rule with id, or nil when it does not exist.
func (r Rules) FindByID(ctx context.Context, id int64) (*rule.Rule, error) {
	var body string
	err := r.s.db.QueryRowContext(ctx, r.s.rebind(`SELECT body FROM rules WHERE id = ?`), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out rule.Rule
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("rule %d: %w", id, err)
	}
	out.ID = id
	return &out, nil
}

// ListIDs returns every stored rule id in ascending order.
func (r Rules) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT id FROM rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r Rules) Upsert(ctx context.Context, ru rule.Rule) error {
	body, err := json.Marshal(ru)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, r.s.rebind(`
		INSERT INTO rules(id, enable, body) VALUES(?,?,?)
		ON CONFLICT(id) DO UPDATE SET enable = excluded.enable, body = excluded.body`),
		ru.ID, boolInt(ru.Enable), string(body),
	)
	return err
}

func (r Rules) Delete(ctx context.Context, id int64) error {
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(`DELETE FROM rules WHERE id = ?`), id)
	return err
}
