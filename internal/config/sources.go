package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalogue is the YAML source catalogue: which feeds, portals, and employer
// pages exist, their selector profiles, and optional slot-table overrides.
// Nothing in here is baked into code; feed priorities in particular come
// only from this file.
type Catalogue struct {
	RSS       []RSSGroup     `yaml:"rss" validate:"dive"`
	Portals   []Portal       `yaml:"portals" validate:"dive"`
	Employers []Employer     `yaml:"employers" validate:"dive"`
	Slots     []SlotOverride `yaml:"slots" validate:"dive"`
}

// RSSGroup is one named group of syndication feeds sharing a priority band.
type RSSGroup struct {
	SourceName string   `yaml:"source_name" validate:"required"`
	Priority   string   `yaml:"priority" validate:"required,oneof=high medium low"`
	Feeds      []string `yaml:"feeds" validate:"required,min=1,dive,url"`
}

// SelectorProfile is a declarative CSS-selector walk over a listings page.
// Unknown fields on the page are ignored; empty selectors mean the field is
// not extracted for this source.
type SelectorProfile struct {
	Listing     string `yaml:"listing" validate:"required"`
	Title       string `yaml:"title" validate:"required"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Salary      string `yaml:"salary"`
	Level       string `yaml:"level"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
}

// Portal describes one public government portal.
type Portal struct {
	ID          string          `yaml:"id" validate:"required"`
	BaseURL     string          `yaml:"base_url" validate:"required,url"`
	ListingsURL string          `yaml:"listings_url" validate:"required,url"`
	Selectors   SelectorProfile `yaml:"selectors"`
}

// Employer describes one company career page.
type Employer struct {
	ID            string          `yaml:"id" validate:"required"`
	CareerPageURL string          `yaml:"career_page_url" validate:"required,url"`
	Selectors     SelectorProfile `yaml:"selectors"`
}

// SlotOverride replaces the default plan for one hour. Actions are tokens
// the scheduler understands: "rss:high", "rss:high+medium", "rss:all",
// "rss:low", "government", "company", "serp:fresh", "serp:executive",
// "serp:gap_fill".
type SlotOverride struct {
	Hour        int      `yaml:"hour" validate:"gte=0,lte=23"`
	Actions     []string `yaml:"actions" validate:"required,min=1"`
	QuotaBudget int      `yaml:"quota_budget" validate:"gte=0"`
}

// LoadCatalogue reads and validates the YAML source catalogue.
func LoadCatalogue(path string) (Catalogue, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("op=config.LoadCatalogue: %w", err)
	}
	return ParseCatalogue(b)
}

// ParseCatalogue parses and validates catalogue bytes.
func ParseCatalogue(b []byte) (Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return Catalogue{}, fmt.Errorf("op=config.ParseCatalogue: %w", err)
	}
	if err := validator.New().Struct(cat); err != nil {
		return Catalogue{}, fmt.Errorf("op=config.ParseCatalogue: %w", err)
	}
	return cat, nil
}
