// Package store provides the SQL persistence behind the development stub
// backend. SQLite (modernc, pure Go) is the default driver; MySQL is
// supported for running against a shared database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/crm-client/pkg/crm"
	"github.com/Sternrassler/crm-client/pkg/query"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

var (
	// ErrUnknownEntity is returned for entities without a table.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownFilter is returned for filters the entity table cannot apply.
	ErrUnknownFilter = errors.New("unknown filter")
)

var memorySeq atomic.Int64

// Store is a concrete SQL store for the CRM list entities.
// Safe for concurrent use; *sql.DB handles pooling.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database, creates the tables and seeds fixtures
// into empty tables. For SQLite the DSN ":memory:" opens a private
// in-memory database.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	connStr := dsn
	switch driver {
	case DriverSQLite:
		if dsn == ":memory:" {
			// Named shared-cache database so every pooled connection sees the
			// same data while separate stores stay isolated.
			connStr = fmt.Sprintf("file:crm-%d?mode=memory&cache=shared", memorySeq.Add(1))
		}
	case DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	if err := s.Seed(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed fixtures: %w", err)
	}

	return s, nil
}

// New wraps an existing connection without touching the schema.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the entity tables if they don't exist. Statements are
// executed one at a time because the MySQL driver rejects multi-statements.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

// List returns one page of entity rows plus the total number of matching
// rows. The search filter q matches case-insensitively against the text
// columns of the entity; other filters match by equality. Unset filters
// are ignored.
func (s *Store) List(ctx context.Context, entity string, filter map[string]string, page, perPage int) ([]any, int, error) {
	t, ok := tables[entity]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = query.DefaultPerPage
	}

	where, args, err := t.where(filter)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM " + t.name + where
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", t.name, err)
	}

	listSQL := "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.name + where +
		" ORDER BY id LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, listSQL, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	items := make([]any, 0, perPage)
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", t.name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate %s: %w", t.name, err)
	}

	return items, total, nil
}

// table maps an entity onto its SQL table.
type table struct {
	name    string
	columns []string
	search  []string
	filters map[string]string
	scan    func(*sql.Rows) (any, error)
}

func (t table) where(filter map[string]string) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	for _, name := range slices.Sorted(maps.Keys(filter)) {
		value := filter[name]
		if query.IsUnsetFor(name, value) {
			continue
		}
		if name == query.FilterSearch {
			like := "%" + strings.ToLower(strings.TrimSpace(value)) + "%"
			parts := make([]string, len(t.search))
			for i, col := range t.search {
				parts[i] = "LOWER(" + col + ") LIKE ?"
				args = append(args, like)
			}
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
			continue
		}
		col, ok := t.filters[name]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q on %s", ErrUnknownFilter, name, t.name)
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, strings.TrimSpace(value))
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

var tables = map[string]table{
	crm.EntityBlogs: {
		name:    "blogs",
		columns: []string{"id", "title", "slug", "category_id", "category", "status", "published_at"},
		search:  []string{"title", "slug"},
		filters: map[string]string{
			query.FilterCategory: "category_id",
			query.FilterStatus:   "status",
		},
		scan: func(rows *sql.Rows) (any, error) {
			var (
				b         crm.Blog
				published sql.NullString
			)
			if err := rows.Scan(&b.ID, &b.Title, &b.Slug, &b.CategoryID, &b.Category, &b.Status, &published); err != nil {
				return nil, err
			}
			if published.Valid && published.String != "" {
				ts, err := time.Parse(time.RFC3339, published.String)
				if err != nil {
					return nil, fmt.Errorf("published_at: %w", err)
				}
				b.PublishedAt = &ts
			}
			return b, nil
		},
	},
	crm.EntityCustomers: {
		name: "customers",
		columns: []string{
			"id", "name", "phone", "email", "city_id", "city", "district_id", "district",
			"type_id", "type", "priority_id", "priority",
		},
		search: []string{"name", "phone", "email"},
		filters: map[string]string{
			query.FilterCity:     "city_id",
			query.FilterDistrict: "district_id",
			query.FilterType:     "type_id",
			query.FilterPriority: "priority_id",
		},
		scan: func(rows *sql.Rows) (any, error) {
			var c crm.Customer
			err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CityID, &c.City,
				&c.DistrictID, &c.District, &c.TypeID, &c.Type, &c.PriorityID, &c.Priority)
			return c, err
		},
	},
	crm.EntityOwners: {
		name:    "property_owners",
		columns: []string{"id", "name", "phone", "city_id", "city", "district_id", "district", "properties_count"},
		search:  []string{"name", "phone"},
		filters: map[string]string{
			query.FilterCity:     "city_id",
			query.FilterDistrict: "district_id",
		},
		scan: func(rows *sql.Rows) (any, error) {
			var o crm.Owner
			err := rows.Scan(&o.ID, &o.Name, &o.Phone, &o.CityID, &o.City, &o.DistrictID, &o.District, &o.PropertiesCount)
			return o, err
		},
	},
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS blogs (
		id INTEGER PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		slug VARCHAR(255) NOT NULL,
		category_id INTEGER NOT NULL,
		category VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		published_at VARCHAR(40) NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(40) NOT NULL,
		email VARCHAR(255) NOT NULL,
		city_id INTEGER NOT NULL,
		city VARCHAR(100) NOT NULL,
		district_id INTEGER NOT NULL,
		district VARCHAR(100) NOT NULL,
		type_id INTEGER NOT NULL,
		type VARCHAR(50) NOT NULL,
		priority_id INTEGER NOT NULL,
		priority VARCHAR(50) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS property_owners (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(40) NOT NULL,
		city_id INTEGER NOT NULL,
		city VARCHAR(100) NOT NULL,
		district_id INTEGER NOT NULL,
		district VARCHAR(100) NOT NULL,
		properties_count INTEGER NOT NULL
	)`,
}
