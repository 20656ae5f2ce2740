// Package crm defines the CRM list entities and wires them to paged
// collection controllers.
package crm

import (
	"strconv"
	"time"
)

// Record is implemented by every entity row.
type Record interface {
	// Identifier is the selection key of the row.
	Identifier() string

	// Cells renders the row for tabular output, aligned with Descriptor.Columns.
	Cells() []string
}

// Blog is a published or draft article.
type Blog struct {
	ID          int        `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Slug        string     `json:"slug" yaml:"slug"`
	CategoryID  int        `json:"category_id" yaml:"category_id"`
	Category    string     `json:"category" yaml:"category"`
	Status      string     `json:"status" yaml:"status"`
	PublishedAt *time.Time `json:"published_at" yaml:"published_at,omitempty"`
}

// Identifier implements Record.
func (b Blog) Identifier() string { return strconv.Itoa(b.ID) }

// Cells implements Record.
func (b Blog) Cells() []string {
	published := "-"
	if b.PublishedAt != nil {
		published = b.PublishedAt.Format(time.DateOnly)
	}
	return []string{strconv.Itoa(b.ID), b.Title, b.Category, b.Status, published}
}

// Customer is a lead or client.
type Customer struct {
	ID         int    `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Phone      string `json:"phone" yaml:"phone"`
	Email      string `json:"email" yaml:"email"`
	CityID     int    `json:"city_id" yaml:"city_id"`
	City       string `json:"city" yaml:"city"`
	DistrictID int    `json:"district_id" yaml:"district_id"`
	District   string `json:"district" yaml:"district"`
	TypeID     int    `json:"type_id" yaml:"type_id"`
	Type       string `json:"type" yaml:"type"`
	PriorityID int    `json:"priority_id" yaml:"priority_id"`
	Priority   string `json:"priority" yaml:"priority"`
}

// Identifier implements Record.
func (c Customer) Identifier() string { return strconv.Itoa(c.ID) }

// Cells implements Record.
func (c Customer) Cells() []string {
	return []string{strconv.Itoa(c.ID), c.Name, c.Phone, location(c.City, c.District), c.Type, c.Priority}
}

// Owner is a property owner.
type Owner struct {
	ID              int    `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Phone           string `json:"phone" yaml:"phone"`
	CityID          int    `json:"city_id" yaml:"city_id"`
	City            string `json:"city" yaml:"city"`
	DistrictID      int    `json:"district_id" yaml:"district_id"`
	District        string `json:"district" yaml:"district"`
	PropertiesCount int    `json:"properties_count" yaml:"properties_count"`
}

// Identifier implements Record.
func (o Owner) Identifier() string { return strconv.Itoa(o.ID) }

// Cells implements Record.
func (o Owner) Cells() []string {
	return []string{strconv.Itoa(o.ID), o.Name, o.Phone, location(o.City, o.District), strconv.Itoa(o.PropertiesCount)}
}

func location(city, district string) string {
	switch {
	case city == "":
		return "-"
	case district == "":
		return city
	default:
		return city + " / " + district
	}
}
