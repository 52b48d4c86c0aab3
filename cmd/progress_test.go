package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
)

func TestFormatProgress(t *testing.T) {
	eta := 65.4
	s := batch.ProgressSnapshot{Total: 4, Processed: 1, Found: 1, EstimatedRemainingSeconds: &eta}
	assert.Equal(t, "[1/4]  25.0%  found 1  not found 0  blocked 0  errors 0  eta 1m5s", formatProgress(s))

	s.Processed = 4
	assert.NotContains(t, formatProgress(s), "eta")
}

func TestProgressPrinter_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)
	assert.False(t, p.tty)

	p.Update(batch.ProgressSnapshot{Total: 2, Processed: 1})
	p.Update(batch.ProgressSnapshot{Total: 2, Processed: 2})
	p.Warn(batch.WarningEvent{Message: "portal appears to be blocking requests"})
	p.Done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "[1/2]"))
	assert.Equal(t, "Warning: portal appears to be blocking requests", lines[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "Vara...", truncate("Vara Cível", 7))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
