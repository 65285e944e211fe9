package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
)

const maxLineBytes = 64 * 1024

// ReadJSONL decodes one fix per line from r and pushes each into sink.
// Blank lines are skipped; a malformed line stops the read.
func ReadJSONL(ctx context.Context, r io.Reader, sink Sink) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var f fix.GeoFix
		if err := json.Unmarshal(b, &f); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := sink.Push(ctx, f); err != nil {
			return n, fmt.Errorf("pushing fix from line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading fixes: %w", err)
	}
	return n, nil
}
