package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/parse"
)

// KindTemplate describes where one notification kind comes from and where
// its rows go.
type KindTemplate struct {
	From         string `yaml:"from"`
	Subject      string `yaml:"subject"`
	LookbackDays int    `yaml:"lookback_days"`
	Worksheet    string `yaml:"worksheet"`
}

// kindOverride is a KindTemplate as read from a templates file. A nil
// LookbackDays keeps the default, so an explicit 0 can select since-today.
type kindOverride struct {
	From         string `yaml:"from"`
	Subject      string `yaml:"subject"`
	LookbackDays *int   `yaml:"lookback_days"`
	Worksheet    string `yaml:"worksheet"`
}

type templatesFile struct {
	Kinds      map[model.Kind]kindOverride `yaml:"kinds"`
	Categories []string                    `yaml:"cem_categories"`
	Cities     []string                    `yaml:"cities"`
	WindowSize int                         `yaml:"window_size"`
	Waste      WasteTemplate               `yaml:"waste"`
}

type WasteTemplate struct {
	Data       string   `yaml:"data"`
	Goals      string   `yaml:"goals"`
	Categories []string `yaml:"categories"`
}

// Templates are the vendor-specific settings that change when a store or a
// vendor template changes.
type Templates struct {
	Kinds      map[model.Kind]KindTemplate `yaml:"kinds"`
	Categories []string                    `yaml:"cem_categories"`
	Cities     []string                    `yaml:"cities"`
	WindowSize int                         `yaml:"window_size"`
	Waste      WasteTemplate               `yaml:"waste"`
}

func DefaultTemplates() Templates {
	return Templates{
		Kinds: map[model.Kind]KindTemplate{
			model.KindCEM:        {From: "SMGMailMgr@whysmg.com", Worksheet: "Daily"},
			model.KindCatering:   {Subject: "Catering Order", LookbackDays: 1, Worksheet: "Catering"},
			model.KindAllocation: {Subject: "Allocation Notification", LookbackDays: 1, Worksheet: "Allocation"},
			model.KindOutOfStock: {Subject: "OOS", LookbackDays: 1, Worksheet: "OOS"},
		},
		Categories: append([]string(nil), parse.DefaultCategories...),
		Cities:     append([]string(nil), parse.DefaultCities...),
		WindowSize: 10,
		Waste: WasteTemplate{
			Data:  "Data",
			Goals: "Goals",
			Categories: []string{
				"Filets",
				"Spicy",
				"Nuggets",
				"Strips",
				"Grilled Filets",
				"Grilled Nuggets",
				"Breakfast Filets",
				"Grilled Breakfast",
			},
		},
	}
}

// LoadTemplates reads overrides from path on top of DefaultTemplates. An
// empty path yields the defaults.
func LoadTemplates(path string) (Templates, error) {
	t := DefaultTemplates()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, fmt.Errorf("read templates: %w", err)
	}
	return parseTemplates(data, t)
}

func parseTemplates(data []byte, base Templates) (Templates, error) {
	var override templatesFile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Templates{}, fmt.Errorf("parse templates: %w", err)
	}

	for kind, kt := range override.Kinds {
		if !kind.Valid() {
			return Templates{}, fmt.Errorf("templates: unknown kind %q", kind)
		}
		merged := base.Kinds[kind]
		if kt.From != "" || kt.Subject != "" {
			merged.From, merged.Subject = kt.From, kt.Subject
		}
		if kt.LookbackDays != nil {
			merged.LookbackDays = *kt.LookbackDays
		}
		if kt.Worksheet != "" {
			merged.Worksheet = kt.Worksheet
		}
		base.Kinds[kind] = merged
	}
	if len(override.Categories) > 0 {
		base.Categories = override.Categories
	}
	if len(override.Cities) > 0 {
		base.Cities = override.Cities
	}
	if override.WindowSize != 0 {
		base.WindowSize = override.WindowSize
	}
	if override.Waste.Data != "" {
		base.Waste.Data = override.Waste.Data
	}
	if override.Waste.Goals != "" {
		base.Waste.Goals = override.Waste.Goals
	}
	if len(override.Waste.Categories) > 0 {
		base.Waste.Categories = override.Waste.Categories
	}

	if err := base.validate(); err != nil {
		return Templates{}, err
	}
	return base, nil
}

var errEmptyCriteria = errors.New("needs a from or subject criterion")

func (t Templates) validate() error {
	for kind, kt := range t.Kinds {
		if kt.From == "" && kt.Subject == "" {
			return fmt.Errorf("templates: %s %w", kind, errEmptyCriteria)
		}
		if kt.LookbackDays < 0 {
			return fmt.Errorf("templates: %s lookback_days must not be negative", kind)
		}
		if kt.Worksheet == "" {
			return fmt.Errorf("templates: %s needs a worksheet", kind)
		}
	}
	if len(t.Categories) == 0 {
		return fmt.Errorf("templates: cem_categories is empty")
	}
	if t.WindowSize < 1 {
		return fmt.Errorf("templates: window_size must be positive")
	}
	return nil
}

// Worksheets maps every kind to its worksheet name.
func (t Templates) Worksheets() map[model.Kind]string {
	out := make(map[model.Kind]string, len(t.Kinds))
	for kind, kt := range t.Kinds {
		out[kind] = kt.Worksheet
	}
	return out
}
