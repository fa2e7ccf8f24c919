package rqlite

import (
	"embed"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/rqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func ParseURL(s string) (u URL, err error) {
	parsed, err := url.Parse(s)
	if err != nil {
		return u, fmt.Errorf("rqlite: parse URL failed: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return u, fmt.Errorf("rqlite: parse URL failed: invalid scheme %q", parsed.Scheme)
	}
	if parsed.Port() == "" {
		parsed.Host = fmt.Sprintf("%s:4001", parsed.Hostname())
	}
	return URL{URL: parsed}, nil
}

type URL struct {
	URL *url.URL
}

func (u URL) DataSourceName() string {
	return u.URL.String()
}

func (u URL) MigrateDatabaseURL() string {
	mu := &url.URL{
		Scheme: "rqlite",
		User:   u.URL.User,
		Host:   fmt.Sprintf("%s:%s", u.URL.Hostname(), u.URL.Port()),
	}
	if u.URL.Scheme == "http" {
		q := mu.Query()
		q.Set("x-connect-insecure", "true")
		mu.RawQuery = q.Encode()
	}
	return mu.String()
}

//go:embed migrations/*.sql
var fs embed.FS

func Migrate(u URL) (err error) {
	srcDriver, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("rqlite: migrate failed to create iofs: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", srcDriver, u.MigrateDatabaseURL())
	if err != nil {
		return fmt.Errorf("rqlite: migrate failed to create source instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("rqlite: migrate up failed: %w", err)
	}
	return nil
}
