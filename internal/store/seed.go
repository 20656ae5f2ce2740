package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Fixture sizes seeded into empty tables.
const (
	SeedBlogs     = 30
	SeedCustomers = 40
	SeedOwners    = 24
)

type district struct {
	id, cityID int
	name       string
}

var (
	cities    = map[int]string{1: "Riyadh", 2: "Jeddah", 3: "Dammam"}
	districts = []district{
		{1, 1, "Olaya"}, {2, 1, "Malqa"},
		{3, 2, "Rawdah"}, {4, 2, "Safa"},
		{5, 3, "Faisaliyah"}, {6, 3, "Shati"},
	}
	customerTypes = []string{"Buyer", "Tenant", "Investor"}
	priorities    = []string{"Low", "Medium", "High"}
	categories    = []string{"Market", "Guides", "News"}
	firstNames    = []string{"Sara", "Omar", "Lina", "Yousef", "Huda", "Khalid", "Mona", "Faisal"}
	familyNames   = []string{"Haddad", "Nasser", "Saleh", "Rahman", "Qasim"}
	topics        = []string{"Rental prices", "First home", "Off-plan projects", "Mortgage rates", "Villa market", "Office space"}
)

func personName(i int) string {
	return firstNames[i%len(firstNames)] + " " + familyNames[(i/len(firstNames))%len(familyNames)]
}

// Seed fills empty tables with deterministic fixtures. Tables that already
// hold rows are left untouched.
func (s *Store) Seed(ctx context.Context) error {
	steps := []struct {
		table string
		fill  func(context.Context, *sql.Tx) error
	}{
		{"blogs", seedBlogs},
		{"customers", seedCustomers},
		{"property_owners", seedOwners},
	}

	for _, step := range steps {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+step.table).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", step.table, err)
		}
		if n > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := step.fill(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed %s: %w", step.table, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", step.table, err)
		}
	}
	return nil
}

func seedBlogs(ctx context.Context, tx *sql.Tx) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO blogs (id, title, slug, category_id, category, status, published_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	start := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < SeedBlogs; i++ {
		id := i + 1
		title := fmt.Sprintf("%s %d", topics[i%len(topics)], id)
		slug := strings.ReplaceAll(strings.ToLower(title), " ", "-")
		category := i % len(categories)

		status := "published"
		var published any = start.AddDate(0, 0, 7*i).Format(time.RFC3339)
		if i%5 == 4 {
			status = "draft"
			published = nil
		}

		if _, err := stmt.ExecContext(ctx, id, title, slug, category+1, categories[category], status, published); err != nil {
			return err
		}
	}
	return nil
}

func seedCustomers(ctx context.Context, tx *sql.Tx) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO customers (id, name, phone, email, city_id, city, district_id, district, type_id, type, priority_id, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < SeedCustomers; i++ {
		id := i + 1
		name := personName(i)
		d := districts[i%len(districts)]
		typ := i % len(customerTypes)
		prio := (i / 2) % len(priorities)
		email := fmt.Sprintf("%s.%d@example.com", strings.ToLower(strings.ReplaceAll(name, " ", ".")), id)
		phone := fmt.Sprintf("+96650%07d", 1000+id)

		if _, err := stmt.ExecContext(ctx, id, name, phone, email, d.cityID, cities[d.cityID], d.id, d.name,
			typ+1, customerTypes[typ], prio+1, priorities[prio]); err != nil {
			return err
		}
	}
	return nil
}

func seedOwners(ctx context.Context, tx *sql.Tx) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO property_owners (id, name, phone, city_id, city, district_id, district, properties_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < SeedOwners; i++ {
		id := i + 1
		d := districts[(i*5)%len(districts)]
		phone := fmt.Sprintf("+96655%07d", 2000+id)

		if _, err := stmt.ExecContext(ctx, id, personName(i+3), phone, d.cityID, cities[d.cityID], d.id, d.name, 1+i%4); err != nil {
			return err
		}
	}
	return nil
}
