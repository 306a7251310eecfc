package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mayodev/opsmail/transport"
)

// Google stores rows in Google Sheets through the v4 values API.
type Google struct {
	service *sheetsapi.Service
	policy  transport.Policy
	logger  *slog.Logger
}

// NewGoogle authenticates with the service account key at credentialsFile.
func NewGoogle(ctx context.Context, credentialsFile string, policy transport.Policy, logger *slog.Logger) (*Google, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, fmt.Errorf("google credentials file is empty")
	}
	service, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Google{service: service, policy: policy, logger: logger}, nil
}

// AppendRow appends values after the last row of worksheet. An empty input
// appends Raw.
func (g *Google) AppendRow(ctx context.Context, sheetID, worksheet string, values []string, input Input) error {
	if input == "" {
		input = Raw
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	body := &sheetsapi.ValueRange{Values: [][]interface{}{row}}

	return transport.Retry(ctx, g.policy, "sheets append "+worksheet, g.logger, func(ctx context.Context) error {
		_, err := g.service.Spreadsheets.Values.Append(sheetID, a1(worksheet, ""), body).
			ValueInputOption(string(input)).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return classify(err)
	})
}

func (g *Google) GetRows(ctx context.Context, sheetID, worksheet, rng string) ([][]string, error) {
	var resp *sheetsapi.ValueRange
	err := transport.Retry(ctx, g.policy, "sheets get "+worksheet, g.logger, func(ctx context.Context) error {
		var err error
		resp, err = g.service.Spreadsheets.Values.Get(sheetID, a1(worksheet, rng)).Context(ctx).Do()
		return classify(err)
	})
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func a1(worksheet, rng string) string {
	quoted := "'" + strings.ReplaceAll(worksheet, "'", "''") + "'"
	if rng == "" {
		return quoted
	}
	return quoted + "!" + rng
}

// classify turns an API error into a transport error carrying its status.
// Client errors other than rate limiting are not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	terr := &transport.Error{Op: "sheets", Status: apiErr.Code, Err: err}
	if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return transport.Permanent(terr)
	}
	return terr
}
