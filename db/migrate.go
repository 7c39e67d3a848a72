package db

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"text/template"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/rqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const defaultPort = "4001"

func ParseRqliteURL(s string) (u RqliteURL, err error) {
	parsed, err := url.Parse(s)
	if err != nil {
		return u, fmt.Errorf("db: parse rqlite URL failed: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return u, fmt.Errorf("db: parse rqlite URL failed: invalid scheme %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return u, fmt.Errorf("db: parse rqlite URL failed: missing host")
	}
	if parsed.Port() == "" {
		parsed.Host = fmt.Sprintf("%s:%s", parsed.Hostname(), defaultPort)
	}
	return RqliteURL{URL: parsed}, nil
}

type RqliteURL struct {
	URL *url.URL
}

func (ru RqliteURL) DataSourceName() string {
	return ru.URL.String()
}

func (ru RqliteURL) MigrateDatabaseURL() string {
	u := &url.URL{
		Scheme: "rqlite",
		User:   ru.URL.User,
		Host:   fmt.Sprintf("%s:%s", ru.URL.Hostname(), ru.URL.Port()),
	}
	if ru.URL.Scheme == "http" {
		q := u.Query()
		q.Set("x-connect-insecure", "true")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the schema. The passage_vec table is created for vectors of
// the given dimension. Once created, its dimension is fixed, see
// Queries.EmbeddingDimension.
func Migrate(u RqliteURL, dimension int) (err error) {
	if dimension <= 0 {
		return fmt.Errorf("db: migrate failed: invalid embedding dimension %d", dimension)
	}
	srcDriver, err := iofs.New(migrationFS{dimension: dimension}, "migrations")
	if err != nil {
		return fmt.Errorf("db: migrate failed to create iofs: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", srcDriver, u.MigrateDatabaseURL())
	if err != nil {
		return fmt.Errorf("db: migrate failed to create source instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate up failed: %w", err)
	}
	return nil
}

type migrationData struct {
	EmbeddingDimension int
}

// migrationFS renders each migration as a text/template.
type migrationFS struct {
	dimension int
}

func (m migrationFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return migrations.ReadDir(name)
}

func (m migrationFS) Open(name string) (fs.File, error) {
	f, err := migrations.Open(name)
	if err != nil || !strings.HasSuffix(name, ".sql") {
		return f, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	sql, err := RenderMigration(name, m.dimension)
	if err != nil {
		return nil, err
	}
	return &renderedFile{Reader: bytes.NewReader(sql), info: stat}, nil
}

// RenderMigration returns the named migration, for example
// "migrations/3_create_passage_vec.up.sql", with the dimension applied.
func RenderMigration(name string, dimension int) ([]byte, error) {
	t, err := template.ParseFS(migrations, name)
	if err != nil {
		return nil, fmt.Errorf("db: failed to parse migration %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err = t.Execute(&buf, migrationData{EmbeddingDimension: dimension}); err != nil {
		return nil, fmt.Errorf("db: failed to render migration %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

type renderedFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }
