// Package haystack loads the candidate strings a search runs over and keeps
// the current set as an immutable, atomically swapped snapshot.
package haystack

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/postgres"
)

// maxLine bounds a single candidate; launcher entries are short.
const maxLine = 1 << 20

// Source produces the full candidate list. Order is preserved into the
// snapshot but does not affect ranking.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]string, error)
}

// FileSource reads one candidate per line. Blank lines are skipped and a
// trailing CR is trimmed.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	defer f.Close()
	return readLines(ctx, f)
}

// ReaderSource reads lines from R once; a second Load sees whatever R has
// left. The CLI uses it for stdin.
type ReaderSource struct {
	R     io.Reader
	Label string
}

func (s ReaderSource) Name() string {
	if s.Label == "" {
		return "reader"
	}
	return s.Label
}

func (s ReaderSource) Load(ctx context.Context) ([]string, error) {
	return readLines(ctx, s.R)
}

// StaticSource serves a fixed list, typically from config.
type StaticSource struct {
	Entries []string
}

func (StaticSource) Name() string { return "inline" }

func (s StaticSource) Load(context.Context) ([]string, error) {
	return append([]string(nil), s.Entries...), nil
}

// PostgresSource selects the text column of Table ordered by id.
type PostgresSource struct {
	DB    *sql.DB
	Table string
}

func (s PostgresSource) Name() string { return "postgres:" + s.Table }

func (s PostgresSource) Load(ctx context.Context) ([]string, error) {
	query := "SELECT text FROM " + postgres.QuoteIdent(s.Table) + " ORDER BY id"
	entries, err := postgres.QueryStrings(ctx, s.DB, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrSourceUnavailable, s.Table, err)
	}
	return entries, nil
}

// NewSource builds the source selected by cfg. db is only consulted for the
// postgres source.
func NewSource(cfg config.HaystackConfig, db *sql.DB) (Source, error) {
	switch cfg.Source {
	case "file":
		return FileSource{Path: cfg.Path}, nil
	case "inline":
		return StaticSource{Entries: cfg.Entries}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("%w: postgres source without a connection", apperrors.ErrSourceUnavailable)
		}
		return PostgresSource{DB: db, Table: cfg.Table}, nil
	default:
		return nil, apperrors.Invalid("unknown haystack source %q", cfg.Source)
	}
}

func readLines(ctx context.Context, r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var out []string
	for n := 0; sc.Scan(); n++ {
		if n&1023 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading lines: %v", apperrors.ErrSourceUnavailable, err)
	}
	return out, nil
}
