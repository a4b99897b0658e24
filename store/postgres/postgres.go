// Package postgres serves drug interaction and contraindication lookups from
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/rx"
)

var schemaDDL = []string{`
create table if not exists drug_interactions (
	id serial primary key,
	drug1 varchar(100) not null,
	drug2 varchar(100) not null,
	severity varchar(20) not null,
	description text not null,
	unique (drug1, drug2)
)`, `
create table if not exists drug_contraindications (
	id serial primary key,
	drug_name varchar(100) not null,
	conditions text[] not null,
	severity varchar(20) not null,
	unique (drug_name)
)`}

// Store implements reference.InteractionSource, reference.ContraindicationSource
// and reference.FindingWriter.
type Store struct {
	DB *sql.DB

	// pgtype.Map caches scan plans and is not safe for concurrent use.
	typesMu sync.Mutex
	types   *pgtype.Map
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, types: pgtype.NewMap()}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", reference.ErrUnavailable, err)
	}
	return New(db), nil
}

func (s *Store) Close() error { return s.DB.Close() }

// EnsureSchema creates the reference tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create reference tables: %w", err)
		}
	}
	return nil
}

// LookupInteraction matches the pair in either column order. Rows written in
// the canonical order win over reversed ones, then the newest row wins.
func (s *Store) LookupInteraction(ctx context.Context, drugA, drugB string) (rx.Interaction, bool, error) {
	first, second := reference.Pair(drugA, drugB)
	row := s.DB.QueryRowContext(ctx, `
		select drug1, drug2, severity, description
		from drug_interactions
		where (drug1 = $1 and drug2 = $2) or (drug1 = $2 and drug2 = $1)
		order by (drug1 = $1 and drug2 = $2) desc, id desc
		limit 1
	`, first, second)
	var (
		in       rx.Interaction
		severity string
	)
	if err := row.Scan(&in.DrugA, &in.DrugB, &severity, &in.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rx.Interaction{}, false, nil
		}
		return rx.Interaction{}, false, unavailable(err)
	}
	in.Severity = rx.ParseSeverity(strings.ToLower(severity))
	return in, true, nil
}

func (s *Store) LookupContraindication(ctx context.Context, drug string) (rx.Contraindication, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		select drug_name, conditions, severity
		from drug_contraindications
		where drug_name = $1
	`, drug)
	var (
		c          rx.Contraindication
		conditions []string
		severity   string
	)
	s.typesMu.Lock()
	err := row.Scan(&c.Drug, s.types.SQLScanner(&conditions), &severity)
	s.typesMu.Unlock()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rx.Contraindication{}, false, nil
		}
		return rx.Contraindication{}, false, unavailable(err)
	}
	if conditions == nil {
		conditions = []string{}
	}
	c.Conditions = conditions
	c.Severity = rx.ParseSeverity(strings.ToLower(severity))
	return c, true, nil
}

// UpsertInteraction writes the pair in canonical order so (A, B) and (B, A)
// share one row.
func (s *Store) UpsertInteraction(ctx context.Context, in rx.Interaction) error {
	if in.DrugA == "" || in.DrugB == "" {
		return fmt.Errorf("both drug names are required")
	}
	first, second := reference.Pair(in.DrugA, in.DrugB)
	_, err := s.DB.ExecContext(ctx, `
		insert into drug_interactions (drug1, drug2, severity, description)
		values ($1, $2, $3, $4)
		on conflict (drug1, drug2) do update
		set severity = excluded.severity,
		    description = excluded.description
	`, first, second, string(in.Severity), in.Description)
	if err != nil {
		return fmt.Errorf("upsert interaction: %w", err)
	}
	return nil
}

func (s *Store) UpsertContraindication(ctx context.Context, c rx.Contraindication) error {
	if c.Drug == "" {
		return fmt.Errorf("drug name is required")
	}
	conditions := c.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	_, err := s.DB.ExecContext(ctx, `
		insert into drug_contraindications (drug_name, conditions, severity)
		values ($1, $2, $3)
		on conflict (drug_name) do update
		set conditions = excluded.conditions,
		    severity = excluded.severity
	`, c.Drug, conditions, string(c.Severity))
	if err != nil {
		return fmt.Errorf("upsert contraindication: %w", err)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", reference.ErrUnavailable, err)
}
