package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mayodev/opsmail/model"
	"github.com/mayodev/opsmail/sheets"
)

// DateLayout is the date format of the score worksheet (M/D/YYYY).
const DateLayout = "1/2/2006"

// layout fixes the column order of one record kind. encode and decode must
// stay inverse to each other. Only the score row is typed by the sheet;
// vendor and customer text is stored literally.
type layout struct {
	header []string
	input  sheets.Input
	encode func(model.Record) ([]string, error)
	decode func([]string) (model.Record, error)
}

func scoreLayout(categories []string) layout {
	header := append([]string{"Date"}, categories...)
	header = append(header, "Respondents")

	return layout{
		header: header,
		input:  sheets.UserEntered,
		encode: func(r model.Record) ([]string, error) {
			rec, ok := r.(model.ScoreRecord)
			if !ok {
				return nil, fmt.Errorf("score layout cannot encode %T", r)
			}
			row := make([]string, 0, len(header))
			row = append(row, rec.Date.Format(DateLayout))
			for _, category := range categories {
				percent, ok := rec.Percent(category)
				if !ok {
					return nil, fmt.Errorf("%w: category %q", ErrPartialRecord, category)
				}
				row = append(row, strconv.Itoa(percent))
			}
			return append(row, strconv.Itoa(rec.Respondents)), nil
		},
		decode: func(row []string) (model.Record, error) {
			// Rows written before the respondent column existed stop at the
			// last category.
			if err := wantColumns(row, len(categories)+1); err != nil {
				return nil, err
			}
			date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(row[0]), time.UTC)
			if err != nil {
				return nil, fmt.Errorf("date column: %w", err)
			}
			rec := model.ScoreRecord{Date: date, Scores: make([]model.Score, 0, len(categories))}
			for i, category := range categories {
				percent, err := atoi(row[i+1])
				if err != nil {
					return nil, fmt.Errorf("%s column: %w", category, err)
				}
				rec.Scores = append(rec.Scores, model.Score{Category: category, Percent: percent})
			}
			if len(row) > len(categories)+1 {
				if rec.Respondents, err = atoi(row[len(categories)+1]); err != nil {
					return nil, fmt.Errorf("respondents column: %w", err)
				}
			}
			return rec, nil
		},
	}
}

var cateringLayout = layout{
	header: []string{"Date", "Time", "Type", "Customer", "Phone", "Address", "Notes"},
	input:  sheets.Raw,
	encode: func(r model.Record) ([]string, error) {
		rec, ok := r.(model.CateringRecord)
		if !ok {
			return nil, fmt.Errorf("catering layout cannot encode %T", r)
		}
		return []string{rec.Date, rec.Time, string(rec.OrderType), rec.CustomerName, rec.Phone, rec.Address, rec.Notes}, nil
	},
	decode: func(row []string) (model.Record, error) {
		// Trailing empty cells are dropped by spreadsheet reads.
		if err := wantColumns(row, 5); err != nil {
			return nil, err
		}
		row = pad(row, 7)
		return model.CateringRecord{
			Date:         row[0],
			Time:         row[1],
			OrderType:    model.OrderType(row[2]),
			CustomerName: row[3],
			Phone:        row[4],
			Address:      row[5],
			Notes:        row[6],
		}, nil
	},
}

func stockLayout(kind model.Kind) layout {
	return layout{
		header: []string{"Item Number", "Item Name", "Effective"},
		input:  sheets.Raw,
		encode: func(r model.Record) ([]string, error) {
			rec, ok := r.(model.StockRecord)
			if !ok || rec.StockKind != kind {
				return nil, fmt.Errorf("%s layout cannot encode %T", kind, r)
			}
			return []string{rec.ItemNumber, rec.ItemName, rec.EffectiveDate}, nil
		},
		decode: func(row []string) (model.Record, error) {
			if err := wantColumns(row, 3); err != nil {
				return nil, err
			}
			return model.StockRecord{
				StockKind:     kind,
				ItemNumber:    row[0],
				ItemName:      row[1],
				EffectiveDate: row[2],
			}, nil
		},
	}
}

func wantColumns(row []string, n int) error {
	if len(row) < n {
		return fmt.Errorf("row has %d columns, want %d", len(row), n)
	}
	return nil
}

func pad(row []string, n int) []string {
	row = append([]string(nil), row...)
	for len(row) < n {
		row = append(row, "")
	}
	return row
}

func atoi(cell string) (int, error) {
	return strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(cell), "%"))
}

func isHeader(row, header []string) bool {
	return len(row) > 0 && len(header) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), header[0])
}
