package source

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/tidwall/gjson"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/pkg/logger"
)

// Postgres reads JSON documents from a PostgreSQL JSONB table shaped as
//
//	CREATE TABLE documents (
//	  id         BIGSERIAL PRIMARY KEY,
//	  collection TEXT  NOT NULL,
//	  doc        JSONB NOT NULL
//	);
type Postgres struct {
	db    *sqlx.DB
	table string
	log   logger.Logger
}

var _ Source = (*Postgres)(nil)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{
		db:    db,
		table: "documents",
		log:   logger.Get().Named("source"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if !identRe.MatchString(p.table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrUnsupported, p.table)
	}
	return p, nil
}

// OpenPostgres connects with dsn and verifies the connection. Options are
// checked before dialing; the pool is closed if they are rejected after.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	if _, err := NewPostgres(nil, opts...); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrRead, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	p, err := NewPostgres(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// buildQuery renders the select for q in the given bind style.
func buildQuery(table string, bindType int, q Query) (string, []any, error) {
	query := "SELECT doc FROM " + table + " WHERE collection = ?"
	args := []any{q.Collection}
	if len(q.Filter) > 0 {
		f, err := json.Marshal(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("%w: filter: %w", ErrUnsupported, err)
		}
		query += " AND doc @> ?::jsonb"
		args = append(args, string(f))
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return sqlx.Rebind(bindType, query), args, nil
}

// FetchRecords runs the collection query and decodes each document.
func (p *Postgres) FetchRecords(ctx context.Context, q Query) ([]dataset.Record, error) {
	query, args, err := buildQuery(p.table, sqlx.BindType(p.db.DriverName()), q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var docs [][]byte
	if err := p.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, q.Collection, err)
	}

	out := make([]dataset.Record, 0, len(docs))
	for i, doc := range docs {
		rec, err := decodeDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, rec)
	}
	p.log.Debug(ctx, "documents fetched",
		logger.String("collection", q.Collection),
		logger.Int("count", len(out)),
		logger.Duration("took", time.Since(start)),
	)
	return out, nil
}

// decodeDocument turns a top-level JSON object into a record. Nested objects
// and arrays are kept as their raw JSON text.
func decodeDocument(doc []byte) (dataset.Record, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: invalid json", ErrDecode)
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: document is %s, not an object", ErrDecode, root.Type)
	}
	rec := dataset.Record{}
	root.ForEach(func(key, value gjson.Result) bool {
		rec[key.String()] = cell(value)
		return true
	})
	return rec, nil
}

func cell(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return v.Float()
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}
