package dashboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestLoadTheme_Builtins(t *testing.T) {
	for _, name := range append(BuiltinThemes(), "") {
		t.Run("theme "+name, func(t *testing.T) {
			p, err := LoadTheme(name)
			if err != nil {
				t.Fatalf("LoadTheme(%q) error = %v", name, err)
			}
			if p.Primary == "" || p.Waiting == "" || p.Failed == "" {
				t.Errorf("palette has empty colors: %+v", p)
			}
		})
	}
}

func TestLoadTheme_Unknown(t *testing.T) {
	_, err := LoadTheme("sparkly")
	if err == nil || !strings.Contains(err.Error(), "unknown theme") {
		t.Errorf("LoadTheme() error = %v", err)
	}
}

func TestLoadTheme_File(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "valid with defaults",
			content: `name: Ocean
version: "1"
colors:
  primary: "#0077BE"
  secondary: "#00A86B"
  warning: "#FFB000"
  error: "#D0312D"
  muted: "#7F8C8D"
  text: "#FFFFFF"
  border: "#34495E"
  active: "#1CA9C9"
`,
		},
		{
			name:    "missing name",
			content: "version: \"1\"\n",
			wantErr: "name is required",
		},
		{
			name:    "wrong version",
			content: "name: x\nversion: \"2\"\n",
			wantErr: "unsupported theme version",
		},
		{
			name: "bad color",
			content: `name: x
version: "1"
colors:
  primary: blue
`,
			wantErr: "invalid format",
		},
		{
			name:    "not yaml",
			content: "name: [unterminated",
			wantErr: "parsing theme file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "theme.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			p, err := LoadTheme(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadTheme() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadTheme() error = %v", err)
			}
			if p.Active != lipgloss.Color("#1CA9C9") {
				t.Errorf("Active = %v", p.Active)
			}
			if p.Completed != p.Secondary || p.Waiting != p.Muted {
				t.Error("unset status colors should default to base colors")
			}
		})
	}
}
