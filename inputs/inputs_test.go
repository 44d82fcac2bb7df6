package inputs

import (
	"context"
	"errors"
	"testing"

	"github.com/ferris-elf/ferris-elf"
	"github.com/matryer/is"
	"github.com/spf13/afero"
)

func TestFixturesSortedEnumeration(t *testing.T) {
	is := is.New(t)

	fsys := afero.NewMemMapFs()
	is.NoErr(afero.WriteFile(fsys, "aoc/2025/4/tokenB", []byte("b"), 0644))
	is.NoErr(afero.WriteFile(fsys, "aoc/2025/4/tokenA", []byte("a"), 0644))
	is.NoErr(afero.WriteFile(fsys, "aoc/2025/4/tokenC", []byte("c"), 0644))

	store := NewStoreFS(fsys, "aoc")
	names, err := store.Fixtures(context.Background(), 2025, 4)
	is.NoErr(err)
	is.Equal(names, []string{"tokenA", "tokenB", "tokenC"})
}

func TestFixtureReadsContent(t *testing.T) {
	is := is.New(t)

	fsys := afero.NewMemMapFs()
	is.NoErr(afero.WriteFile(fsys, "aoc/2025/1/token", []byte("1 2 3\n"), 0644))

	store := NewStoreFS(fsys, "aoc")
	data, err := store.Fixture(context.Background(), 2025, 1, "token")
	is.NoErr(err)
	is.Equal(data, "1 2 3\n")
}

func TestFixturesMissingDayWithoutTokens(t *testing.T) {
	is := is.New(t)

	// No tokens configured means a missing day cannot be fetched
	store := NewStoreFS(afero.NewMemMapFs(), "aoc")
	_, err := store.Fixtures(context.Background(), 2025, 9)

	var fetchErr *ferriself.FetchError
	is.True(errors.As(err, &fetchErr))
	is.Equal(fetchErr.Day, 9)
}

func TestFixtureMissingFile(t *testing.T) {
	is := is.New(t)

	store := NewStoreFS(afero.NewMemMapFs(), "aoc")
	_, err := store.Fixture(context.Background(), 2025, 1, "nope")

	var fetchErr *ferriself.FetchError
	is.True(errors.As(err, &fetchErr))
}
