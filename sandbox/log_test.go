package sandbox

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestTrimBuildLogCropsDependencyNoise(t *testing.T) {
	is := is.New(t)

	log := "   Compiling serde v1.0.200\n   Compiling ferris-elf v0.1.0\nerror: expected `;`\n"
	got := TrimBuildLog(log)
	is.Equal(got, "Compiling ferris-elf v0.1.0\nerror: expected `;`\n")
}

func TestTrimBuildLogStripsANSIBeforeCropping(t *testing.T) {
	is := is.New(t)

	// cargo colors "Compiling"; the marker must still be found
	log := "\x1b[1m\x1b[32m   Compiling\x1b[0m serde v1.0.200\n\x1b[1m\x1b[32m   Compiling\x1b[0m ferris-elf v0.1.0\n\x1b[31merror\x1b[0m: oh no\n"
	got := TrimBuildLog(log)
	is.Equal(got, "Compiling ferris-elf v0.1.0\nerror: oh no\n")
}

func TestTrimBuildLogKeepsTail(t *testing.T) {
	is := is.New(t)

	log := strings.Repeat("x", maxLogSize+500) + "error: the end"
	got := TrimBuildLog(log)
	is.Equal(len(got), maxLogSize)
	is.True(strings.HasSuffix(got, "error: the end"))
}

func TestTrimBuildLogNoMarker(t *testing.T) {
	is := is.New(t)

	is.Equal(TrimBuildLog("plain failure\n"), "plain failure\n")
}
