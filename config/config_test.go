package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/parse"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return LoadConfig(cmd)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/abc")
	t.Setenv("IMAP_PASS", "secret")

	cfg, err := load(t, "--imap-host", "imap.gmail.com", "--imap-user", "ops@example.com", "--log-level", "WARNING")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if diff := cmp.Diff(model.Kinds, cfg.Kinds); diff != "" {
		t.Errorf("Kinds mismatch (-want +got):\n%s", diff)
	}
	if cfg.WebhookURL != "https://hooks.example.com/abc" || cfg.IMAPPass != "secret" {
		t.Errorf("env fallback not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if err := cfg.RequireMailbox(); err != nil {
		t.Errorf("RequireMailbox() error = %v", err)
	}
	if cfg.Templates.WindowSize != 10 || len(cfg.Templates.Categories) != 7 {
		t.Errorf("Templates = %+v", cfg.Templates)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad kind", args: []string{"--kind", "sales"}, want: "invalid --kind"},
		{name: "two mailboxes", args: []string{"--mbox", "a.mbox", "--imap-host", "h"}, want: "mutually exclusive"},
		{name: "two stores", args: []string{"--csv-dir", "d", "--google-credentials", "k.json"}, want: "mutually exclusive"},
		{name: "bad port", args: []string{"--imap-port", "0"}, want: "--imap-port"},
		{name: "bad level", args: []string{"--log-level", "loud"}, want: "--log-level"},
		{name: "negative retries", args: []string{"--retries", "-1"}, want: "--retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	cfg := Config{}
	if err := cfg.RequireMailbox(); err == nil {
		t.Error("RequireMailbox() expected error")
	}
	if err := cfg.RequireStore(); err == nil {
		t.Error("RequireStore() expected error")
	}
	if err := cfg.RequireWebhook(); err == nil {
		t.Error("RequireWebhook() expected error")
	}

	cfg = Config{MboxPath: "a.mbox", CSVDir: "sheets", SheetID: "cem", DryRun: true}
	for name, fn := range map[string]func() error{
		"mailbox": cfg.RequireMailbox,
		"store":   cfg.RequireStore,
		"webhook": cfg.RequireWebhook,
	} {
		if err := fn(); err != nil {
			t.Errorf("Require %s error = %v", name, err)
		}
	}
}

func TestParseTemplates(t *testing.T) {
	data := []byte(`
kinds:
  oos:
    subject: "Out of Stock"
    lookback_days: 3
cities: ["Henderson"]
window_size: 30
waste:
  categories: ["Filets", "Spicy"]
`)
	got, err := parseTemplates(data, DefaultTemplates())
	if err != nil {
		t.Fatalf("parseTemplates() error = %v", err)
	}
	want := KindTemplate{Subject: "Out of Stock", LookbackDays: 3, Worksheet: "OOS"}
	if diff := cmp.Diff(want, got.Kinds[model.KindOutOfStock]); diff != "" {
		t.Errorf("oos template mismatch (-want +got):\n%s", diff)
	}
	if got.Kinds[model.KindCEM].From != "SMGMailMgr@whysmg.com" {
		t.Errorf("cem template lost its default: %+v", got.Kinds[model.KindCEM])
	}
	if got.WindowSize != 30 || len(got.Cities) != 1 || got.Waste.Data != "Data" || len(got.Waste.Categories) != 2 {
		t.Errorf("parseTemplates() = %+v", got)
	}
}

func TestParseTemplatesLookbackZero(t *testing.T) {
	data := []byte("kinds:\n  catering:\n    lookback_days: 0\n  allocation:\n    worksheet: Limited\n")
	got, err := parseTemplates(data, DefaultTemplates())
	if err != nil {
		t.Fatalf("parseTemplates() error = %v", err)
	}
	if got.Kinds[model.KindCatering].LookbackDays != 0 {
		t.Errorf("catering lookback = %d, want 0", got.Kinds[model.KindCatering].LookbackDays)
	}
	if got.Kinds[model.KindAllocation].LookbackDays != 1 {
		t.Errorf("allocation lookback = %d, want default 1", got.Kinds[model.KindAllocation].LookbackDays)
	}
}

func TestDefaultTemplatesUseParserDefaults(t *testing.T) {
	got := DefaultTemplates()
	if diff := cmp.Diff(parse.DefaultCategories, got.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(parse.DefaultCities, got.Cities); diff != "" {
		t.Errorf("cities mismatch (-want +got):\n%s", diff)
	}

	got.Categories[0] = "changed"
	if parse.DefaultCategories[0] == "changed" {
		t.Error("DefaultTemplates() shares the parser defaults")
	}
}

func TestParseTemplatesRejects(t *testing.T) {
	tests := map[string]string{
		"unknown kind": "kinds:\n  sales:\n    subject: x\n",
		"bad window":   "window_size: -2\n",
		"bad yaml":     "kinds: [",
	}
	for name, data := range tests {
		if _, err := parseTemplates([]byte(data), DefaultTemplates()); err == nil {
			t.Errorf("%s: parseTemplates() expected error", name)
		}
	}

	base := DefaultTemplates()
	base.Kinds[model.KindCEM] = KindTemplate{Worksheet: "Daily"}
	if err := base.validate(); !errors.Is(err, errEmptyCriteria) {
		t.Errorf("validate() error = %v, want errEmptyCriteria", err)
	}
}
