package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadJSONL reads one record per line from r. Blank lines are ignored and
// malformed lines are skipped; the number of skipped lines is returned.
// Records without an id get their 1-based line number.
func LoadJSONL(r io.Reader) ([]Record, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		records []Record
		skipped int
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		if rec.ID == "" {
			rec.ID = strconv.Itoa(lineNo)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, err
	}
	return records, skipped, nil
}

// JSONLSource reads corpora from files named <corpusID>.jsonl under Dir, or
// from a single file when Path is set.
type JSONLSource struct {
	Dir  string
	Path string
}

// Documents implements Source.
func (s JSONLSource) Documents(ctx context.Context, corpusID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path
	if path == "" {
		path = filepath.Join(s.Dir, corpusID+".jsonl")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	records, _, err := LoadJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return records, nil
}
