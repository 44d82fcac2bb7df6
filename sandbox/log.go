package sandbox

import (
	"regexp"
	"strings"
)

const (
	// compileMarker is where the user's crate starts compiling; everything
	// before it is dependency noise.
	compileMarker = "Compiling ferris-elf"

	maxLogSize = 100 * 1024
)

var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// TrimBuildLog cuts a build log down for delivery: dependency output before
// the user crate is dropped, ANSI color codes are stripped and the result is
// capped, keeping the tail where the actual errors are.
func TrimBuildLog(log string) string {
	log = ansiEscapes.ReplaceAllString(log, "")
	if i := strings.Index(log, compileMarker); i >= 0 {
		log = log[i:]
	}
	if len(log) > maxLogSize {
		log = log[len(log)-maxLogSize:]
	}
	return log
}
