package ferriself

import (
	"testing"

	"github.com/matryer/is"
)

func TestContentHash(t *testing.T) {
	is := is.New(t)

	h1 := ContentHash([]byte("pub fn run(input: &str) -> i64 { 0 }"))
	h2 := ContentHash([]byte("pub fn run(input: &str) -> i64 { 1 }"))

	is.Equal(len(h1), 64) // 256-bit hex
	is.True(h1 != h2)
	is.Equal(h1, ContentHash([]byte("pub fn run(input: &str) -> i64 { 0 }")))
}
