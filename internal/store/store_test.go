package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/crm-client/pkg/crm"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "")
	assert.Error(t, err)
}

func TestList_Pages(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	items, total, err := s.List(ctx, crm.EntityCustomers, nil, 1, 15)
	require.NoError(t, err)
	assert.Equal(t, SeedCustomers, total)
	require.Len(t, items, 15)
	assert.Equal(t, 1, items[0].(crm.Customer).ID)

	items, _, err = s.List(ctx, crm.EntityCustomers, nil, 3, 15)
	require.NoError(t, err)
	require.Len(t, items, 10)
	assert.Equal(t, 31, items[0].(crm.Customer).ID)

	items, total, err = s.List(ctx, crm.EntityCustomers, nil, 9, 15)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, SeedCustomers, total)
}

func TestList_Filters(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		entity string
		filter map[string]string
		want   int
	}{
		{"no filters", crm.EntityOwners, nil, SeedOwners},
		{"city", crm.EntityCustomers, map[string]string{"city_id": "1"}, 14},
		{"city and district", crm.EntityCustomers, map[string]string{"city_id": "1", "district_id": "1"}, 7},
		{"unset values ignored", crm.EntityCustomers, map[string]string{"city_id": "all", "type_id": ""}, SeedCustomers},
		{"search is case-insensitive", crm.EntityCustomers, map[string]string{"q": "SARA"}, 5},
		{"search and filter", crm.EntityCustomers, map[string]string{"q": "sara", "city_id": "1"}, 2},
		{"owner city", crm.EntityOwners, map[string]string{"city_id": "1"}, 8},
		{"blog status", crm.EntityBlogs, map[string]string{"status": "draft"}, 6},
		{"blog category", crm.EntityBlogs, map[string]string{"category_id": "1"}, 10},
		{"search text is never the sentinel", crm.EntityBlogs, map[string]string{"q": "all"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := s.List(ctx, tt.entity, tt.filter, 1, 50)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}
}

func TestList_BlogPublishedAt(t *testing.T) {
	s := openMemory(t)

	items, _, err := s.List(context.Background(), crm.EntityBlogs, nil, 1, 5)
	require.NoError(t, err)
	require.Len(t, items, 5)

	first := items[0].(crm.Blog)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2024, first.PublishedAt.Year())
	assert.Equal(t, "rental-prices-1", first.Slug)

	draft := items[4].(crm.Blog)
	assert.Equal(t, "draft", draft.Status)
	assert.Nil(t, draft.PublishedAt)
}

func TestList_Errors(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, _, err := s.List(ctx, "invoices", nil, 1, 15)
	assert.True(t, errors.Is(err, ErrUnknownEntity))

	_, _, err = s.List(ctx, crm.EntityBlogs, map[string]string{"city_id": "1"}, 1, 15)
	assert.True(t, errors.Is(err, ErrUnknownFilter))
}

func TestSeed_Idempotent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))

	_, total, err := s.List(ctx, crm.EntityBlogs, nil, 1, 15)
	require.NoError(t, err)
	assert.Equal(t, SeedBlogs, total)
}

func TestOpen_MemoryStoresAreIsolated(t *testing.T) {
	a := openMemory(t)
	b := openMemory(t)
	ctx := context.Background()

	_, err := a.db.ExecContext(ctx, "DELETE FROM blogs")
	require.NoError(t, err)

	_, total, err := b.List(ctx, crm.EntityBlogs, nil, 1, 15)
	require.NoError(t, err)
	assert.Equal(t, SeedBlogs, total)
}

func TestList_MySQLStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, DriverMySQL)

	where := " WHERE city_id = ? AND (LOWER(name) LIKE ? OR LOWER(phone) LIKE ? OR LOWER(email) LIKE ?)"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM customers" + where)).
		WithArgs("1", "%ali%", "%ali%", "%ali%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(16))
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers" + where + " ORDER BY id LIMIT ? OFFSET ?")).
		WithArgs("1", "%ali%", "%ali%", "%ali%", 15, 15).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "phone", "email", "city_id", "city", "district_id", "district",
			"type_id", "type", "priority_id", "priority",
		}).AddRow(16, "Ali Saleh", "+966500001016", "ali@example.com", 1, "Riyadh", 2, "Malqa", 1, "Buyer", 3, "High"))

	items, total, err := s.List(context.Background(), crm.EntityCustomers,
		map[string]string{"q": " Ali ", "city_id": "1", "type_id": "all"}, 2, 15)
	require.NoError(t, err)
	assert.Equal(t, 16, total)
	require.Len(t, items, 1)

	c := items[0].(crm.Customer)
	assert.Equal(t, "Ali Saleh", c.Name)
	assert.Equal(t, "Malqa", c.District)
	assert.Equal(t, "High", c.Priority)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_CountError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection reset"))

	_, _, err = New(db, DriverMySQL).List(context.Background(), crm.EntityOwners, nil, 1, 15)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count property_owners")
	require.NoError(t, mock.ExpectationsWereMet())
}
