package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeJSONL reads records from r, one JSON object per line. Blank lines are
// skipped. Lines that fail to decode are returned as LineErrors alongside the
// successfully decoded records; the caller decides whether malformed lines
// are fatal (the pipeline treats them as rejects).
func DecodeJSONL(r io.Reader) ([]Record, []LineError) {
	var (
		records []Record
		errs    []LineError
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			errs = append(errs, LineError{Line: line, Err: err})
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, LineError{Line: line, Err: err})
	}
	return records, errs
}

// EncodeJSONL writes records to w, one JSON object per line.
func EncodeJSONL(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

// LineError describes a single undecodable input line.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }
