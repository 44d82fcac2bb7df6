package ferriself

import (
	"testing"

	"github.com/matryer/is"
)

func TestFormatNanos(t *testing.T) {
	is := is.New(t)

	is.Equal(FormatNanos(432), "432ns")
	is.Equal(FormatNanos(1500), "1.50µs")
	is.Equal(FormatNanos(103945), "103.95µs")
	is.Equal(FormatNanos(2_500_000), "2.50ms")
	is.Equal(FormatNanos(1_250_000_000), "1.25s")
	is.Equal(FormatNanos(0), "0ns")
}
