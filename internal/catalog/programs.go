package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"recsched/internal/reservation"
	"recsched/internal/rule"
	logx "recsched/pkg/logx"
)

const programColumns = `id, channel_id, channel_type, channel, name, description, extended, genre1, genre2, start_at, end_at, is_free`

type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(row scanner) (reservation.Program, error) {
	var (
		p      reservation.Program
		ct     string
		g1, g2 sql.NullInt64
		free   int
	)
	if err := row.Scan(&p.ID, &p.ChannelID, &ct, &p.Channel, &p.Name, &p.Description, &p.Extended, &g1, &g2, &p.StartAt, &p.EndAt, &free); err != nil {
		return reservation.Program{}, err
	}
	p.ChannelType = reservation.ChannelType(ct)
	if g1.Valid {
		v := int(g1.Int64)
		p.Genre1 = &v
	}
	if g2.Valid {
		v := int(g2.Int64)
		p.Genre2 = &v
	}
	p.IsFree = free != 0
	return p, nil
}

// FindByID returns the program with id, or nil when it does not exist.
// Unless includePast is set, programs that already ended are not returned.
func (s *Store) FindByID(ctx context.Context, id int64, includePast bool) (*reservation.Program, error) {
	q := `SELECT ` + programColumns + ` FROM programs WHERE id = ?`
	args := []any{id}
	if !includePast {
		q += ` AND end_at > ?`
		args = append(args, s.now().UnixMilli())
	}
	p, err := scanProgram(s.db.QueryRowContext(ctx, s.rebind(q), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByRule returns upcoming programs matching c, ordered by start.
func (s *Store) FindByRule(ctx context.Context, c rule.SearchCriteria) ([]reservation.Program, error) {
	m, err := rule.Compile(c, s.loc)
	if err != nil {
		return nil, err
	}

	where := []string{"end_at > ?"}
	args := []any{s.now().UnixMilli()}

	if c.Station != nil {
		where = append(where, "channel_id = ?")
		args = append(args, *c.Station)
	} else if types := c.ChannelTypes(); len(types) > 0 {
		ph := make([]string, len(types))
		for i, t := range types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "channel_type IN ("+strings.Join(ph, ",")+")")
	}
	if c.Genrelv1 != nil {
		where = append(where, "genre1 = ?")
		args = append(args, *c.Genrelv1)
		if c.Genrelv2 != nil {
			where = append(where, "genre2 = ?")
			args = append(args, *c.Genrelv2)
		}
	}
	if c.IsFree != nil && *c.IsFree {
		where = append(where, "is_free = 1")
	}
	if c.DurationMin != nil {
		where = append(where, "end_at - start_at >= ?")
		args = append(args, int64(*c.DurationMin)*1000)
	}
	if c.DurationMax != nil {
		where = append(where, "end_at - start_at <= ?")
		args = append(args, int64(*c.DurationMax)*1000+999)
	}

	q := `SELECT ` + programColumns + ` FROM programs WHERE ` + strings.Join(where, " AND ") + ` ORDER BY start_at, id`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Program
	scanned := 0
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		scanned++
		if m.Match(p) {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.log.Trace("rule search", logx.Int("scanned", scanned), logx.Int("matched", len(out)))
	return out, nil
}

// UpsertProgram inserts or replaces a guide entry.
func (s *Store) UpsertProgram(ctx context.Context, p reservation.Program) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO programs(`+programColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  channel_id = excluded.channel_id,
		  channel_type = excluded.channel_type,
		  channel = excluded.channel,
		  name = excluded.name,
		  description = excluded.description,
		  extended = excluded.extended,
		  genre1 = excluded.genre1,
		  genre2 = excluded.genre2,
		  start_at = excluded.start_at,
		  end_at = excluded.end_at,
		  is_free = excluded.is_free`),
		p.ID, p.ChannelID, string(p.ChannelType), p.Channel, p.Name, p.Description, p.Extended,
		nullInt(p.Genre1), nullInt(p.Genre2), p.StartAt, p.EndAt, boolInt(p.IsFree),
	)
	return err
}

// DeleteProgram removes a guide entry. Missing ids are not an error.
func (s *Store) DeleteProgram(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM programs WHERE id = ?`), id)
	return err
}

// PruneEnded removes programs that ended before cutoffMs and reports how many.
func (s *Store) PruneEnded(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM programs WHERE end_at < ?`), cutoffMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
