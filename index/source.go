package index

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jagroop-dev/wlf/db"
)

type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceObjectStore
	SourceRqlite
)

// Source describes where a prebuilt index is persisted.
type Source struct {
	Kind SourceKind
	// Path to a local index directory.
	Path string
	// Bucket and Prefix locate an index in an object store.
	Bucket string
	Prefix string
	// Rqlite and Name locate an index partition held in rqlite.
	Rqlite db.RqliteURL
	Name   string
}

var ErrEmptySource = errors.New("index: empty source")

// ParseSource accepts a directory path, file://path, gs://bucket/prefix, or
// rqlite://[user:pass@]host[:port]/name[?tls=true].
func ParseSource(s string) (src Source, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return src, ErrEmptySource
	}
	if !strings.Contains(s, "://") {
		return Source{Kind: SourceLocal, Path: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return src, fmt.Errorf("index: parse source %q failed: %w", s, err)
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" {
			p = u.Host + p
		}
		if p == "" {
			return src, ErrEmptySource
		}
		return Source{Kind: SourceLocal, Path: p}, nil
	case "gs":
		if u.Host == "" {
			return src, fmt.Errorf("index: parse source %q failed: missing bucket", s)
		}
		return Source{Kind: SourceObjectStore, Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
	case "rqlite":
		name := strings.Trim(u.Path, "/")
		if name == "" {
			return src, fmt.Errorf("index: parse source %q failed: missing index name", s)
		}
		scheme := "http"
		if u.Query().Get("tls") == "true" {
			scheme = "https"
		}
		ru, err := db.ParseRqliteURL((&url.URL{Scheme: scheme, User: u.User, Host: u.Host}).String())
		if err != nil {
			return src, fmt.Errorf("index: parse source %q failed: %w", s, err)
		}
		return Source{Kind: SourceRqlite, Rqlite: ru, Name: name}, nil
	}
	return src, fmt.Errorf("index: parse source %q failed: unsupported scheme %q", s, u.Scheme)
}

func (s Source) String() string {
	switch s.Kind {
	case SourceObjectStore:
		return fmt.Sprintf("gs://%s/%s", s.Bucket, s.Prefix)
	case SourceRqlite:
		if s.Rqlite.URL == nil {
			return "rqlite:///" + s.Name
		}
		return fmt.Sprintf("rqlite://%s/%s", s.Rqlite.URL.Host, s.Name)
	}
	return s.Path
}
