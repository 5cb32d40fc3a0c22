// Package settings holds reader presentation preferences.
package settings

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StorageKey is the persistence key of the settings record.
const StorageKey = "settings"

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Settings are applied by the reader when rendering a document. MaxWidth is
// measured in terminal cells and ParagraphSpacing in blank lines (rounded).
type Settings struct {
	FontSize         float64 `json:"fontSize"`
	LineHeight       float64 `json:"lineHeight"`
	FontFamily       string  `json:"fontFamily"`
	LetterSpacing    float64 `json:"letterSpacing"`
	TextAlign        string  `json:"textAlign"`
	BackgroundColor  string  `json:"backgroundColor"`
	TextColor        string  `json:"textColor"`
	MaxWidth         int     `json:"maxWidth"`
	ParagraphSpacing float64 `json:"paragraphSpacing"`
	Contrast         float64 `json:"contrast"`
	Theme            string  `json:"theme"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{
		FontSize:         16,
		LineHeight:       1.6,
		FontFamily:       "serif",
		LetterSpacing:    0,
		TextAlign:        "left",
		BackgroundColor:  "#1a1a1a",
		TextColor:        "#ffffff",
		MaxWidth:         60,
		ParagraphSpacing: 1.5,
		Contrast:         1,
		Theme:            ThemeDark,
	}
}

// UnmarshalJSON fills fields that are missing or zero from Defaults.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	var stored plain
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}
	*s = Settings(stored).withDefaults()
	return nil
}

func (s Settings) withDefaults() Settings {
	d := Defaults()
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.LineHeight <= 0 {
		s.LineHeight = d.LineHeight
	}
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.TextAlign == "" {
		s.TextAlign = d.TextAlign
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = d.BackgroundColor
	}
	if s.TextColor == "" {
		s.TextColor = d.TextColor
	}
	if s.MaxWidth <= 0 {
		s.MaxWidth = d.MaxWidth
	}
	if s.ParagraphSpacing <= 0 {
		s.ParagraphSpacing = d.ParagraphSpacing
	}
	if s.Contrast <= 0 {
		s.Contrast = d.Contrast
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	return s
}

// BlankLines is the number of empty lines drawn between paragraphs.
func (s Settings) BlankLines() int {
	n := int(s.ParagraphSpacing + 0.5)
	if n < 0 {
		return 0
	}
	return n
}

var fields = map[string]func(*Settings, string) error{
	"fontSize":         floatField(func(s *Settings) *float64 { return &s.FontSize }),
	"lineHeight":       floatField(func(s *Settings) *float64 { return &s.LineHeight }),
	"letterSpacing":    floatField(func(s *Settings) *float64 { return &s.LetterSpacing }),
	"paragraphSpacing": floatField(func(s *Settings) *float64 { return &s.ParagraphSpacing }),
	"contrast":         floatField(func(s *Settings) *float64 { return &s.Contrast }),
	"fontFamily":       stringField(func(s *Settings) *string { return &s.FontFamily }),
	"backgroundColor":  stringField(func(s *Settings) *string { return &s.BackgroundColor }),
	"textColor":        stringField(func(s *Settings) *string { return &s.TextColor }),
	"maxWidth": func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 20 {
			return fmt.Errorf("maxWidth must be an integer of at least 20")
		}
		s.MaxWidth = n
		return nil
	},
	"textAlign": func(s *Settings, v string) error {
		switch v {
		case "left", "center", "right", "justify":
			s.TextAlign = v
			return nil
		}
		return fmt.Errorf("textAlign must be left, center, right or justify")
	},
	"theme": func(s *Settings, v string) error {
		if v != ThemeDark && v != ThemeLight {
			return fmt.Errorf("theme must be %s or %s", ThemeDark, ThemeLight)
		}
		s.Theme = v
		return nil
	},
}

// Keys lists the names accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value into the field named key.
func (s *Settings) Set(key, value string) error {
	set, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return set(s, strings.TrimSpace(value))
}

// Get renders the field named key.
func (s Settings) Get(key string) (string, bool) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", false
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return "", false
	}
	v, ok := values[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}

func floatField(field func(*Settings) *float64) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("expected a non-negative number, got %q", v)
		}
		*field(s) = f
		return nil
	}
}

func stringField(field func(*Settings) *string) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		if v == "" {
			return fmt.Errorf("value must not be empty")
		}
		*field(s) = v
		return nil
	}
}
