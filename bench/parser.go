// Package bench contains the benchmark orchestration core: the run-output
// protocol parser, the statistics fold, the build/run/verify pipeline and the
// serialized submission queue.
package bench

import (
	"strconv"
	"strings"

	"github.com/ferris-elf/ferris-elf"
)

// Tagged prefixes emitted by the in-container harness. Lines are scanned
// independently and unrecognized lines are ignored, so the sandbox is free to
// print extra diagnostics.
const (
	prefixAnswer  = "FERRIS_ELF_ANSWER "
	prefixMedian  = "FERRIS_ELF_MEDIAN "
	prefixAverage = "FERRIS_ELF_AVERAGE "
	prefixMax     = "FERRIS_ELF_MAX "
	prefixMin     = "FERRIS_ELF_MIN "
)

// Optional cachegrind summary labels. Values are comma-grouped integers
// terminated by a space, e.g. "Total Memory Accesses...4,790,804,439 (0%)".
const (
	labelMemAccesses   = "Total Memory Accesses"
	labelL1InstrMisses = "Total L1 I-Cache Misses"
	labelLLInstrMisses = "Total LL I-Cache Misses"
	labelL1DataMisses  = "Total L1 D-Cache Misses"
	labelLLDataMisses  = "Total LL D-Cache Misses"
)

// measurementBuilder accumulates fields while scanning; a Measurement only
// exists once every mandatory field was seen.
type measurementBuilder struct {
	answer                        *string
	median, average, minNs, maxNs *int64
	memAccesses, l1Instr, llInstr *int64
	l1Data, llData                *int64
}

func (b *measurementBuilder) missing() []string {
	var missing []string
	if b.answer == nil {
		missing = append(missing, "answer")
	}
	if b.median == nil {
		missing = append(missing, "median")
	}
	if b.average == nil {
		missing = append(missing, "average")
	}
	if b.minNs == nil {
		missing = append(missing, "min")
	}
	if b.maxNs == nil {
		missing = append(missing, "max")
	}
	return missing
}

func (b *measurementBuilder) build() (*ferriself.Measurement, error) {
	if missing := b.missing(); len(missing) > 0 {
		return nil, &ferriself.MalformedOutputError{Missing: missing}
	}
	m := &ferriself.Measurement{
		Answer:  *b.answer,
		Median:  *b.median,
		Average: *b.average,
		Min:     *b.minNs,
		Max:     *b.maxNs,
	}
	if b.memAccesses != nil || b.l1Instr != nil || b.llInstr != nil || b.l1Data != nil || b.llData != nil {
		m.Cache = &ferriself.CacheProfile{
			MemoryAccesses: deref(b.memAccesses),
			L1InstrMisses:  deref(b.l1Instr),
			LLInstrMisses:  deref(b.llInstr),
			L1DataMisses:   deref(b.l1Data),
			LLDataMisses:   deref(b.llData),
		}
	}
	return m, nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// ParseOutput decodes the full textual stdout of one sandboxed run into a
// Measurement. Pure function of its input; fails with MalformedOutputError
// when any mandatory field never appeared.
func ParseOutput(out string) (*ferriself.Measurement, error) {
	var b measurementBuilder
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, prefixAnswer):
			answer := strings.TrimSpace(line[len(prefixAnswer):])
			b.answer = &answer
		case strings.HasPrefix(line, prefixMedian):
			b.median = parseNanos(line[len(prefixMedian):])
		case strings.HasPrefix(line, prefixAverage):
			b.average = parseNanos(line[len(prefixAverage):])
		case strings.HasPrefix(line, prefixMax):
			b.maxNs = parseNanos(line[len(prefixMax):])
		case strings.HasPrefix(line, prefixMin):
			b.minNs = parseNanos(line[len(prefixMin):])
		case strings.Contains(line, labelMemAccesses):
			b.memAccesses = parseGrouped(line, labelMemAccesses)
		case strings.Contains(line, labelL1InstrMisses):
			b.l1Instr = parseGrouped(line, labelL1InstrMisses)
		case strings.Contains(line, labelLLInstrMisses):
			b.llInstr = parseGrouped(line, labelLLInstrMisses)
		case strings.Contains(line, labelL1DataMisses):
			b.l1Data = parseGrouped(line, labelL1DataMisses)
		case strings.Contains(line, labelLLDataMisses):
			b.llData = parseGrouped(line, labelLLDataMisses)
		}
	}
	return b.build()
}

func parseNanos(s string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseGrouped extracts the comma-grouped integer following a cachegrind
// label, stopping at the first space (the "(0%)" suffix).
func parseGrouped(line, label string) *int64 {
	rest := line[strings.Index(line, label)+len(label):]
	rest = strings.TrimLeft(rest, ". ")
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.ReplaceAll(rest, ",", "")
	v, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
