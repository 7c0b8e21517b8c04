package dashboard

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// ThemeFile is a custom theme loaded from YAML.
type ThemeFile struct {
	Name    string      `yaml:"name"`
	Version string      `yaml:"version"`
	Colors  ThemeColors `yaml:"colors"`
}

// ThemeColors holds hex colors (#RGB or #RRGGBB). Status colors are
// optional and default to the base colors.
type ThemeColors struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
	Warning   string `yaml:"warning"`
	Error     string `yaml:"error"`
	Muted     string `yaml:"muted"`
	Text      string `yaml:"text"`
	Border    string `yaml:"border"`

	Waiting   string `yaml:"waiting,omitempty"`
	Active    string `yaml:"active,omitempty"`
	Completed string `yaml:"completed,omitempty"`
	Failed    string `yaml:"failed,omitempty"`
}

// Palette is a resolved theme.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	Border    lipgloss.Color

	Waiting   lipgloss.Color
	Active    lipgloss.Color
	Completed lipgloss.Color
	Failed    lipgloss.Color
}

// Built-in theme names.
const (
	ThemeDefault = "default"
	ThemeDracula = "dracula"
	ThemeNord    = "nord"
	ThemeMono    = "mono"
)

var builtinThemes = map[string]ThemeColors{
	ThemeDefault: {
		Primary:   "#A78BFA",
		Secondary: "#10B981",
		Warning:   "#F59E0B",
		Error:     "#F87171",
		Muted:     "#9CA3AF",
		Text:      "#F9FAFB",
		Border:    "#6B7280",
		Active:    "#60A5FA",
	},
	ThemeDracula: {
		Primary:   "#BD93F9",
		Secondary: "#50FA7B",
		Warning:   "#FFB86C",
		Error:     "#FF5555",
		Muted:     "#6272A4",
		Text:      "#F8F8F2",
		Border:    "#44475A",
		Active:    "#8BE9FD",
	},
	ThemeNord: {
		Primary:   "#88C0D0",
		Secondary: "#A3BE8C",
		Warning:   "#EBCB8B",
		Error:     "#BF616A",
		Muted:     "#4C566A",
		Text:      "#ECEFF4",
		Border:    "#434C5E",
		Active:    "#81A1C1",
	},
	ThemeMono: {
		Primary:   "#FFFFFF",
		Secondary: "#D0D0D0",
		Warning:   "#B0B0B0",
		Error:     "#FFFFFF",
		Muted:     "#808080",
		Text:      "#FFFFFF",
		Border:    "#606060",
	},
}

// BuiltinThemes returns the built-in theme names, sorted.
func BuiltinThemes() []string {
	names := make([]string, 0, len(builtinThemes))
	for name := range builtinThemes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var hexColorRegex = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// LoadTheme resolves a theme by built-in name or by path to a YAML file.
// An empty name selects the default theme.
func LoadTheme(nameOrPath string) (*Palette, error) {
	if nameOrPath == "" {
		nameOrPath = ThemeDefault
	}
	if colors, ok := builtinThemes[nameOrPath]; ok {
		return colors.palette(), nil
	}
	if !strings.HasSuffix(nameOrPath, ".yaml") && !strings.HasSuffix(nameOrPath, ".yml") {
		return nil, fmt.Errorf("unknown theme %q (built-in: %s)", nameOrPath, strings.Join(BuiltinThemes(), ", "))
	}
	theme, err := LoadThemeFile(nameOrPath)
	if err != nil {
		return nil, err
	}
	return theme.Colors.palette(), nil
}

// LoadThemeFile loads and validates a theme from a YAML file.
func LoadThemeFile(path string) (*ThemeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading theme file: %w", err)
	}

	var theme ThemeFile
	if err := yaml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("parsing theme file: %w", err)
	}
	if err := theme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid theme: %w", err)
	}
	return &theme, nil
}

// Validate checks that the theme file is well-formed.
func (t *ThemeFile) Validate() error {
	if t.Name == "" {
		return errors.New("theme name is required")
	}
	if t.Version != "1" {
		return fmt.Errorf("unsupported theme version: %q (supported: 1)", t.Version)
	}

	required := []struct{ name, color string }{
		{"primary", t.Colors.Primary},
		{"secondary", t.Colors.Secondary},
		{"warning", t.Colors.Warning},
		{"error", t.Colors.Error},
		{"muted", t.Colors.Muted},
		{"text", t.Colors.Text},
		{"border", t.Colors.Border},
	}
	for _, c := range required {
		if c.color == "" {
			return fmt.Errorf("color '%s' is required", c.name)
		}
		if !hexColorRegex.MatchString(c.color) {
			return fmt.Errorf("color '%s' has invalid format: %s (expected #RGB or #RRGGBB)", c.name, c.color)
		}
	}

	optional := []struct{ name, color string }{
		{"waiting", t.Colors.Waiting},
		{"active", t.Colors.Active},
		{"completed", t.Colors.Completed},
		{"failed", t.Colors.Failed},
	}
	for _, c := range optional {
		if c.color != "" && !hexColorRegex.MatchString(c.color) {
			return fmt.Errorf("color '%s' has invalid format: %s (expected #RGB or #RRGGBB)", c.name, c.color)
		}
	}
	return nil
}

func (c ThemeColors) palette() *Palette {
	return &Palette{
		Primary:   lipgloss.Color(c.Primary),
		Secondary: lipgloss.Color(c.Secondary),
		Warning:   lipgloss.Color(c.Warning),
		Error:     lipgloss.Color(c.Error),
		Muted:     lipgloss.Color(c.Muted),
		Text:      lipgloss.Color(c.Text),
		Border:    lipgloss.Color(c.Border),
		Waiting:   colorOrDefault(c.Waiting, c.Muted),
		Active:    colorOrDefault(c.Active, c.Primary),
		Completed: colorOrDefault(c.Completed, c.Secondary),
		Failed:    colorOrDefault(c.Failed, c.Error),
	}
}

func colorOrDefault(color, fallback string) lipgloss.Color {
	if color != "" {
		return lipgloss.Color(color)
	}
	return lipgloss.Color(fallback)
}

// Styles are the lipgloss styles derived from a palette.
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Label     lipgloss.Style
	Muted     lipgloss.Style
	Text      lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Box       lipgloss.Style
	Waiting   lipgloss.Style
	Active    lipgloss.Style
	Completed lipgloss.Style
	Failed    lipgloss.Style
}

// NewStyles builds styles from p.
func NewStyles(p *Palette) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		Subtitle:  lipgloss.NewStyle().Foreground(p.Muted).Italic(true),
		Label:     lipgloss.NewStyle().Bold(true).Foreground(p.Text),
		Muted:     lipgloss.NewStyle().Foreground(p.Muted),
		Text:      lipgloss.NewStyle().Foreground(p.Text),
		Warning:   lipgloss.NewStyle().Foreground(p.Warning),
		Error:     lipgloss.NewStyle().Foreground(p.Error),
		Success:   lipgloss.NewStyle().Foreground(p.Secondary),
		Box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Border).Padding(0, 1),
		Waiting:   lipgloss.NewStyle().Foreground(p.Waiting),
		Active:    lipgloss.NewStyle().Foreground(p.Active),
		Completed: lipgloss.NewStyle().Foreground(p.Completed),
		Failed:    lipgloss.NewStyle().Foreground(p.Failed),
	}
}

// PlainStyles renders without color, for non-terminal output.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{
		Title: s, Subtitle: s, Label: s, Muted: s, Text: s,
		Warning: s, Error: s, Success: s, Box: s,
		Waiting: s, Active: s, Completed: s, Failed: s,
	}
}
