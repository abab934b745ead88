package zone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
)

// PostgresStore implements Store against a zone_rrs table, one row per RR,
// using the pgx stdlib driver (sql.Open("pgx", ...)) the same way the
// management repository does.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectRRColumns = `name, type, class, ttl, ip, host, priority, weight, port, txt,
	mname, rname, serial, refresh, retry, expire, minimum, data`

func scanRR(row interface {
	Scan(dest ...interface{}) error
}) (packet.DNSRecord, error) {
	var rr packet.DNSRecord
	var ip sql.NullString
	var typ, class uint16
	if err := row.Scan(&rr.Name, &typ, &class, &rr.TTL, &ip, &rr.Host, &rr.Priority, &rr.Weight,
		&rr.Port, &rr.Txt, &rr.MName, &rr.RName, &rr.Serial, &rr.Refresh, &rr.Retry, &rr.Expire,
		&rr.Minimum, &rr.Data); err != nil {
		return rr, err
	}
	rr.Type = packet.QueryType(typ)
	rr.Class = class
	if ip.Valid {
		rr.IP = net.ParseIP(ip.String)
	}
	return rr, nil
}

func (s *PostgresStore) Lookup(ctx context.Context, name string) ([]packet.DNSRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectRRColumns+` FROM zone_rrs WHERE LOWER(name) = LOWER($1)`, name)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("zone: failed to close rows: %v", errClose)
		}
	}()

	var rrset []packet.DNSRecord
	for rows.Next() {
		rr, errScan := scanRR(rows)
		if errScan != nil {
			return nil, false, errScan
		}
		rrset = append(rrset, rr)
	}
	return rrset, len(rrset) > 0, rows.Err()
}

func (s *PostgresStore) Set(ctx context.Context, name string, rrset []packet.DNSRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("zone: failed to rollback transaction: %v", errRollback)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_rrs WHERE LOWER(name) = LOWER($1)`, name); err != nil {
		return err
	}
	for _, rr := range rrset {
		if err := insertRR(ctx, tx, rr); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertRR(ctx context.Context, tx *sql.Tx, rr packet.DNSRecord) error {
	var ip *string
	if rr.IP != nil {
		s := rr.IP.String()
		ip = &s
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO zone_rrs
		(name, type, class, ttl, ip, host, priority, weight, port, txt,
		 mname, rname, serial, refresh, retry, expire, minimum, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		rr.Name, uint16(rr.Type), rr.Class, rr.TTL, ip, rr.Host, rr.Priority, rr.Weight, rr.Port,
		rr.Txt, rr.MName, rr.RName, rr.Serial, rr.Refresh, rr.Retry, rr.Expire, rr.Minimum, rr.Data)
	return err
}

func (s *PostgresStore) Has(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM zone_rrs WHERE LOWER(name) = LOWER($1))`, name).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) Remove(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM zone_rrs WHERE LOWER(name) = LOWER($1)`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) RemoveRType(ctx context.Context, name string, rtype packet.QueryType) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM zone_rrs WHERE LOWER(name) = LOWER($1) AND type = $2`, name, uint16(rtype))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) AddRR(ctx context.Context, name string, rr packet.DNSRecord) error {
	rr.Name = name
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("zone: failed to rollback transaction: %v", errRollback)
		}
	}()
	if err := insertRR(ctx, tx, rr); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) RemoveRR(ctx context.Context, name string, rr packet.DNSRecord) (bool, error) {
	rrset, ok, err := s.Lookup(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	for _, existing := range rrset {
		if rrEqual(existing, rr) {
			return s.removeExact(ctx, name, existing)
		}
	}
	return false, nil
}

func (s *PostgresStore) removeExact(ctx context.Context, name string, rr packet.DNSRecord) (bool, error) {
	var ip *string
	if rr.IP != nil {
		v := rr.IP.String()
		ip = &v
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM zone_rrs WHERE LOWER(name) = LOWER($1) AND type = $2
		AND COALESCE(ip,'') = COALESCE($3,'') AND COALESCE(host,'') = COALESCE($4,'')
		AND COALESCE(txt,'') = COALESCE($5,'') AND priority = $6 AND weight = $7 AND port = $8`,
		name, uint16(rr.Type), ip, rr.Host, rr.Txt, rr.Priority, rr.Weight, rr.Port)
	if err != nil {
		return false, fmt.Errorf("removeExact: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) ListNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM zone_rrs`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("zone: failed to close rows: %v", errClose)
		}
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
