package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DebugLogName)
	writeLog(t, backupPath(path, 1),
		`{"time":"2026-03-01T12:00:01Z","level":"INFO","msg":"stage started","session_id":"s1","phase":"stage1"}`,
		`not json`,
	)
	writeLog(t, path,
		`{"time":"2026-03-01T12:00:03Z","level":"ERROR","msg":"member failed","session_id":"s1","member":"beta","error":"rate limited"}`,
		``,
		`{"time":"2026-03-01T12:00:02Z","level":"DEBUG","msg":"prompt sent","session_id":"s1","member":"alpha"}`,
	)

	entries, err := ReadEntries(dir)
	if err != nil {
		t.Fatalf("ReadEntries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadEntries() = %d entries, want 3", len(entries))
	}
	for i, want := range []string{"stage started", "prompt sent", "member failed"} {
		if entries[i].Message != want {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Message, want)
		}
	}
	last := entries[2]
	if last.Member != "beta" || last.SessionID != "s1" || last.Attrs["error"] != "rate limited" {
		t.Errorf("parsed entry = %+v", last)
	}
	if _, ok := last.Attrs["member"]; ok {
		t.Error("standard fields should not be repeated in attrs")
	}
}

func TestReadEntries_NoLogs(t *testing.T) {
	if _, err := ReadEntries(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without logs")
	}
}

func TestFilter(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Time: base, Level: LevelDebug, Message: "prompt sent", SessionID: "s1", Member: "alpha", Phase: "stage1"},
		{Time: base.Add(time.Minute), Level: LevelInfo, Message: "ranking parsed", SessionID: "s1", Member: "alpha", Phase: "stage2"},
		{Time: base.Add(2 * time.Minute), Level: LevelWarn, Message: "unusable ranking", SessionID: "s1", Member: "beta", Phase: "stage2"},
		{Time: base.Add(3 * time.Minute), Level: LevelError, Message: "chairman failed", SessionID: "s2", Phase: "stage3"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"empty filter", Filter{}, 4},
		{"minimum level", Filter{Level: "warn"}, 2},
		{"since", Filter{Since: base.Add(90 * time.Second)}, 2},
		{"session", Filter{SessionID: "s1"}, 3},
		{"member and phase", Filter{Member: "alpha", Phase: "stage2"}, 1},
		{"message substring", Filter{Contains: "ranking"}, 2},
		{"combined", Filter{SessionID: "s1", Level: "INFO", Contains: "ranking"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterEntries(entries, tt.filter); len(got) != tt.want {
				t.Errorf("FilterEntries() = %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestTail(t *testing.T) {
	entries := []Entry{{Message: "a"}, {Message: "b"}, {Message: "c"}}
	if got := Tail(entries, 2); len(got) != 2 || got[0].Message != "b" {
		t.Errorf("Tail(2) = %+v", got)
	}
	if got := Tail(entries, 0); len(got) != 3 {
		t.Errorf("Tail(0) = %+v", got)
	}
	if got := Tail(entries, 10); len(got) != 3 {
		t.Errorf("Tail(10) = %+v", got)
	}
}

func TestWriteEntries(t *testing.T) {
	entries := []Entry{{
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:     LevelWarn,
		Message:   "unusable ranking",
		SessionID: "s1",
		Member:    "beta",
		Attrs:     map[string]any{"labels": float64(3)},
	}}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "text"); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"WARN", "unusable ranking", "(session=s1, member=beta)", `{"labels":3}`} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("text output missing %q: %s", want, buf.String())
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "json"); err != nil {
			t.Fatal(err)
		}
		var decoded []Entry
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || len(decoded) != 1 || decoded[0].Member != "beta" {
			t.Errorf("json output = %s (%v)", buf.String(), err)
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "csv"); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "time,level,msg") {
			t.Errorf("csv output = %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := WriteEntries(&bytes.Buffer{}, entries, "xml"); err == nil {
			t.Error("expected an error for an unknown format")
		}
	})
}
