// Package inputs is the benchmark fixture collaborator: it lists and reads
// the input files for a (year, day), fetching them from adventofcode.com on
// first use. Each configured session token yields one input file named after
// the token, so the filenames double as fixture identifiers.
package inputs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/ferris-elf/ferris-elf"
	"github.com/spf13/afero"
)

type Store struct {
	fs     afero.Fs
	dir    string
	tokens []string
	client *http.Client
}

func NewStore(dir string, tokens []string) *Store {
	return &Store{
		fs:     afero.NewOsFs(),
		dir:    dir,
		tokens: tokens,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewStoreFS keeps the store on a caller-provided filesystem; tests use a
// memory fs.
func NewStoreFS(fsys afero.Fs, dir string) *Store {
	return &Store{fs: fsys, dir: dir, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *Store) dayDir(year, day int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d", year), fmt.Sprintf("%d", day))
}

// Fixtures returns the fixture names for (year, day) in a fixed order. When
// the day's directory is missing it tries one fetch first; remaining
// failures surface as *FetchError.
func (s *Store) Fixtures(ctx context.Context, year, day int) ([]string, error) {
	names, err := s.listDir(year, day)
	if err == nil {
		return names, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, &ferriself.FetchError{Year: year, Day: day, Err: err}
	}

	if err := s.fetch(ctx, year, day); err != nil {
		return nil, &ferriself.FetchError{Year: year, Day: day, Err: err}
	}
	names, err = s.listDir(year, day)
	if err != nil {
		return nil, &ferriself.FetchError{Year: year, Day: day, Err: err}
	}
	return names, nil
}

func (s *Store) listDir(year, day int) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dayDir(year, day))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// Deterministic enumeration order for the pipeline
	sort.Strings(names)
	return names, nil
}

// Fixture reads one input file.
func (s *Store) Fixture(ctx context.Context, year, day int, name string) (string, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dayDir(year, day), name))
	if err != nil {
		return "", &ferriself.FetchError{Year: year, Day: day, Err: err}
	}
	return string(data), nil
}

func (s *Store) fetch(ctx context.Context, year, day int) error {
	if len(s.tokens) == 0 {
		return fmt.Errorf("no session tokens configured")
	}
	slog.InfoContext(ctx, "Fetching inputs", slog.Int("year", year), slog.Int("day", day))

	if err := s.fs.MkdirAll(s.dayDir(year, day), 0755); err != nil {
		return err
	}
	for _, token := range s.tokens {
		if err := s.fetchOne(ctx, year, day, token); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) fetchOne(ctx context.Context, year, day int, token string) error {
	url := fmt.Sprintf("https://adventofcode.com/%d/day/%d/input", year, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "session", Value: token})

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s fetching %s", resp.Status, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, filepath.Join(s.dayDir(year, day), token), body, 0644)
}
