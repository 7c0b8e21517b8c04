package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// Entry is one parsed line of debug.log.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	SessionID string         `json:"session_id,omitempty"`
	Member    string         `json:"member,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero fields match everything; set fields must
// all match.
type Filter struct {
	// Level is the minimum level.
	Level     string
	Since     time.Time
	SessionID string
	Member    string
	Phase     string
	// Contains matches a substring of the message.
	Contains string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadEntries parses debug.log in dir together with its rotated backups,
// oldest first. Lines that are not JSON are skipped.
func ReadEntries(dir string) ([]Entry, error) {
	files := LogFiles(dir)
	if len(files) == 0 {
		return nil, fmt.Errorf("no logs in %s", dir)
	}

	var entries []Entry
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		err = scanEntries(f, func(e Entry) { entries = append(entries, e) })
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	slices.SortStableFunc(entries, func(a, b Entry) int { return a.Time.Compare(b.Time) })
	return entries, nil
}

func scanEntries(r io.Reader, fn func(Entry)) error {
	scanner := bufio.NewScanner(r)
	// prompts logged at debug level can be long
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if e, err := parseEntry(line); err == nil {
			fn(e)
		}
	}
	return scanner.Err()
}

func parseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var e Entry
	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	if t, err := time.Parse(time.RFC3339Nano, take("time")); err == nil {
		e.Time = t
	}
	e.Level = take("level")
	e.Message = take("msg")
	e.SessionID = take("session_id")
	e.Member = take("member")
	e.Phase = take("phase")
	if len(raw) > 0 {
		e.Attrs = raw
	}
	return e, nil
}

// Match reports whether e passes every set criterion.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		got, ok := levelRank[e.Level]
		if ok && got < levelRank[ParseLevel(f.Level)] {
			return false
		}
	}
	switch {
	case !f.Since.IsZero() && e.Time.Before(f.Since):
		return false
	case f.SessionID != "" && e.SessionID != f.SessionID:
		return false
	case f.Member != "" && e.Member != f.Member:
		return false
	case f.Phase != "" && e.Phase != f.Phase:
		return false
	case f.Contains != "" && !strings.Contains(e.Message, f.Contains):
		return false
	}
	return true
}

// FilterEntries returns the entries f matches, in order.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Tail returns the last n entries; n <= 0 returns all of them.
func Tail(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// String formats e as a single line:
// [time] LEVEL message (session=.., member=.., phase=..) {attrs}
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-5s %s", e.Time.Local().Format("2006-01-02 15:04:05.000"), e.Level, e.Message)

	var ctx []string
	if e.SessionID != "" {
		ctx = append(ctx, "session="+e.SessionID)
	}
	if e.Member != "" {
		ctx = append(ctx, "member="+e.Member)
	}
	if e.Phase != "" {
		ctx = append(ctx, "phase="+e.Phase)
	}
	if len(ctx) > 0 {
		b.WriteString(" (" + strings.Join(ctx, ", ") + ")")
	}
	if len(e.Attrs) > 0 {
		if data, err := json.Marshal(e.Attrs); err == nil {
			b.WriteString(" " + string(data))
		}
	}
	return b.String()
}

// ExportFormats lists the formats WriteEntries accepts.
func ExportFormats() []string { return []string{"text", "json", "csv"} }

// WriteEntries writes entries as text lines, a JSON array or CSV.
func WriteEntries(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, e.String()); err != nil {
				return err
			}
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []Entry{}
		}
		return enc.Encode(entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: %s)", format, strings.Join(ExportFormats(), ", "))
	}
}

func writeCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "msg", "session_id", "member", "phase", "attrs"}); err != nil {
		return err
	}
	for _, e := range entries {
		attrs := ""
		if len(e.Attrs) > 0 {
			if data, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(data)
			}
		}
		row := []string{e.Time.Format(time.RFC3339Nano), e.Level, e.Message, e.SessionID, e.Member, e.Phase, attrs}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
