package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mayodev/opsmail/model"
)

// Config captures all command-line options of the pipeline.
type Config struct {
	Kinds []model.Kind

	MboxPath           string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string

	GoogleCredentials string
	SheetID           string
	WasteSheetID      string
	CSVDir            string

	WebhookURL         string
	OperatorWebhookURL string

	FTPAddr    string
	FTPUser    string
	FTPPass    string
	FTPDir     string
	UploadDir  string
	PublicBase string

	Timeout     time.Duration
	Retries     int
	StateDir    string
	DryRun      bool
	LogLevel    string
	LogDir      string
	Pushgateway string

	TemplatesPath string
	Templates     Templates
}

// RegisterFlags attaches all CLI flags to the provided command. They are
// persistent so subcommands share them.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.PersistentFlags()
	flags.StringArray("kind", nil, "Notification kind to poll: cem, catering, allocation, oos (repeatable, default all)")
	flags.String("mbox", "", "Read notifications from this .mbox archive instead of IMAP")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("folder", "INBOX", "IMAP folder holding the notifications")
	flags.String("google-credentials", "", "Service account key file for Google Sheets")
	flags.String("sheet-id", "", "Spreadsheet holding the notification worksheets")
	flags.String("waste-sheet-id", "", "Spreadsheet holding the waste Data and Goals worksheets")
	flags.String("csv-dir", "", "Keep worksheets as CSV files in this directory instead of Google Sheets")
	flags.String("webhook-url", "", "Announcement webhook (falls back to WEBHOOK_URL env var)")
	flags.String("operator-webhook-url", "", "Webhook for delivery failure reports (falls back to OPERATOR_WEBHOOK_URL env var)")
	flags.String("ftp-addr", "", "FTP host:port for chart uploads")
	flags.String("ftp-user", "", "FTP username")
	flags.String("ftp-pass", "", "FTP password (falls back to FTP_PASS env var)")
	flags.String("ftp-dir", "images", "Remote FTP directory for charts")
	flags.String("upload-dir", "", "Write charts to this local directory instead of FTP")
	flags.String("public-base", "http://www.mayodev.com/images", "Public URL prefix of uploaded charts")
	flags.Duration("timeout", 30*time.Second, "Timeout of a single mailbox, spreadsheet or webhook call")
	flags.Int("retries", 1, "Retries after a failed transport call")
	flags.String("state-dir", defaultStateDir, "Directory for the ingest ledger and run lock")
	flags.Bool("dry-run", false, "Parse and render without appending, marking or publishing")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("pushgateway", "", "Prometheus Pushgateway URL for run metrics")
	flags.String("templates", "", "YAML file overriding vendor template settings")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var cfg Config
	var err error

	kinds, err := flags.GetStringArray("kind")
	if err != nil {
		return Config{}, err
	}
	strs := []struct {
		name string
		dst  *string
	}{
		{"mbox", &cfg.MboxPath},
		{"imap-host", &cfg.IMAPHost},
		{"imap-user", &cfg.IMAPUser},
		{"imap-pass", &cfg.IMAPPass},
		{"folder", &cfg.Folder},
		{"google-credentials", &cfg.GoogleCredentials},
		{"sheet-id", &cfg.SheetID},
		{"waste-sheet-id", &cfg.WasteSheetID},
		{"csv-dir", &cfg.CSVDir},
		{"webhook-url", &cfg.WebhookURL},
		{"operator-webhook-url", &cfg.OperatorWebhookURL},
		{"ftp-addr", &cfg.FTPAddr},
		{"ftp-user", &cfg.FTPUser},
		{"ftp-pass", &cfg.FTPPass},
		{"ftp-dir", &cfg.FTPDir},
		{"upload-dir", &cfg.UploadDir},
		{"public-base", &cfg.PublicBase},
		{"state-dir", &cfg.StateDir},
		{"log-level", &cfg.LogLevel},
		{"log-dir", &cfg.LogDir},
		{"pushgateway", &cfg.Pushgateway},
		{"templates", &cfg.TemplatesPath},
	}
	for _, s := range strs {
		if *s.dst, err = flags.GetString(s.name); err != nil {
			return Config{}, err
		}
	}
	if cfg.IMAPPort, err = flags.GetInt("imap-port"); err != nil {
		return Config{}, err
	}
	if cfg.Retries, err = flags.GetInt("retries"); err != nil {
		return Config{}, err
	}
	if cfg.UseTLS, err = flags.GetBool("use-tls"); err != nil {
		return Config{}, err
	}
	if cfg.InsecureSkipVerify, err = flags.GetBool("insecure-skip-verify"); err != nil {
		return Config{}, err
	}
	if cfg.DryRun, err = flags.GetBool("dry-run"); err != nil {
		return Config{}, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return Config{}, err
	}

	envFallback(&cfg.IMAPPass, "IMAP_PASS")
	envFallback(&cfg.WebhookURL, "WEBHOOK_URL")
	envFallback(&cfg.OperatorWebhookURL, "OPERATOR_WEBHOOK_URL")
	envFallback(&cfg.FTPPass, "FTP_PASS")

	if cfg.StateDir == "" {
		cfg.StateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if len(kinds) == 0 {
		cfg.Kinds = append(cfg.Kinds, model.Kinds...)
	}
	for _, k := range kinds {
		cfg.Kinds = append(cfg.Kinds, model.Kind(strings.ToLower(strings.TrimSpace(k))))
	}

	if cfg.Templates, err = LoadTemplates(cfg.TemplatesPath); err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envFallback(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func validateConfig(cfg Config) error {
	for _, k := range cfg.Kinds {
		if !k.Valid() {
			return fmt.Errorf("invalid --kind: %s", k)
		}
	}
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("--retries must not be negative")
	}
	if cfg.MboxPath != "" && cfg.IMAPHost != "" {
		return fmt.Errorf("--mbox and --imap-host are mutually exclusive")
	}
	if cfg.CSVDir != "" && cfg.GoogleCredentials != "" {
		return fmt.Errorf("--csv-dir and --google-credentials are mutually exclusive")
	}
	if cfg.UploadDir != "" && cfg.FTPAddr != "" {
		return fmt.Errorf("--upload-dir and --ftp-addr are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// RequireMailbox checks the options needed to read notifications.
func (c Config) RequireMailbox() error {
	if c.MboxPath != "" {
		return nil
	}
	if c.IMAPHost == "" {
		return fmt.Errorf("--mbox or --imap-host is required")
	}
	if c.IMAPUser == "" {
		return fmt.Errorf("--imap-user is required")
	}
	if c.IMAPPass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
	}
	return nil
}

// RequireStore checks the options needed to reach the spreadsheet.
func (c Config) RequireStore() error {
	if c.CSVDir == "" && c.GoogleCredentials == "" {
		return fmt.Errorf("--google-credentials or --csv-dir is required")
	}
	if c.SheetID == "" {
		return fmt.Errorf("--sheet-id is required")
	}
	return nil
}

// RequireWebhook checks the options needed to publish. Dry runs never
// publish.
func (c Config) RequireWebhook() error {
	if c.DryRun || c.WebhookURL != "" {
		return nil
	}
	return fmt.Errorf("webhook must be provided via --webhook-url or WEBHOOK_URL env var")
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".opsmail", "state"), nil
}
