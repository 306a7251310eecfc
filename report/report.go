// Package report turns a rolling window into the text and chart that get
// published.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/mayodev/opsmail/aggregate"
	"github.com/mayodev/opsmail/model"
)

// ErrNoChart is returned alongside a text-only artifact when the chart could
// not be drawn.
var ErrNoChart = errors.New("chart unavailable")

// Artifact is one rendered report. Chart is nil for text-only reports.
type Artifact struct {
	Kind      model.Kind
	Title     string
	Sections  []string
	Chart     []byte
	ChartName string
}

// Summary joins the sections into one plain message.
func (a Artifact) Summary() string {
	return strings.Join(a.Sections, "\n\n")
}

type Renderer struct {
	categories []string
	now        func() time.Time
	logger     *slog.Logger
}

func NewRenderer(categories []string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{categories: categories, now: time.Now, logger: logger}
}

// Render builds the artifact for w. A chart failure still returns the text
// artifact together with an error wrapping ErrNoChart.
func (r *Renderer) Render(w aggregate.Window) (Artifact, error) {
	art := Artifact{Kind: w.Kind, Title: title(w.Kind)}
	if len(w.Records) == 0 {
		return art, fmt.Errorf("empty %s window", w.Kind)
	}

	switch w.Kind {
	case model.KindCEM:
		return r.renderScores(art, w)
	case model.KindCatering:
		for _, rec := range w.Records {
			if c, ok := rec.(model.CateringRecord); ok {
				art.Sections = append(art.Sections, cateringSection(c))
			}
		}
	case model.KindAllocation, model.KindOutOfStock:
		for _, rec := range w.Records {
			if s, ok := rec.(model.StockRecord); ok {
				art.Sections = append(art.Sections, fmt.Sprintf("*%s - %s*\n%s", s.ItemNumber, s.ItemName, s.EffectiveDate))
			}
		}
	default:
		return art, fmt.Errorf("no renderer for kind %q", w.Kind)
	}
	return art, nil
}

func (r *Renderer) renderScores(art Artifact, w aggregate.Window) (Artifact, error) {
	var scores []model.ScoreRecord
	for _, rec := range w.Records {
		if s, ok := rec.(model.ScoreRecord); ok {
			scores = append(scores, s)
		}
	}
	if len(scores) == 0 {
		return art, fmt.Errorf("no score records in window")
	}
	art.Sections = []string{r.scoreSection(scores[len(scores)-1])}

	png, err := r.scoreChart(scores)
	if err != nil {
		r.logger.Warn("chart rendering failed, publishing text only", "err", err)
		return art, fmt.Errorf("%w: %v", ErrNoChart, err)
	}
	now := r.now()
	art.Chart = png
	art.ChartName = fmt.Sprintf("plot_%d_%d.png", int(now.Month()), now.Day())
	return art, nil
}

func (r *Renderer) scoreSection(rec model.ScoreRecord) string {
	var b strings.Builder
	b.WriteString("*Month to Date CEM Scores*\n")
	fmt.Fprintf(&b, "Out of %d responses\n```", rec.Respondents)
	for _, category := range r.categories {
		percent, ok := rec.Percent(category)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%-25s%4s\n", category, strconv.Itoa(percent)+"%")
	}
	b.WriteString("```")
	return b.String()
}

// scoreChart draws one series per category against date. go-chart panics on
// some degenerate inputs, so panics are returned as errors.
func (r *Renderer) scoreChart(scores []model.ScoreRecord) (png []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			png, err = nil, fmt.Errorf("chart panic: %v", rec)
		}
	}()

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Date.Before(scores[j].Date) })
	dates := make([]time.Time, len(scores))
	for i, s := range scores {
		dates[i] = s.Date
	}

	series := make([]chart.Series, 0, len(r.categories))
	for i, category := range r.categories {
		values := make([]float64, len(scores))
		for j, s := range scores {
			percent, _ := s.Percent(category)
			values[j] = float64(percent)
		}
		series = append(series, chart.TimeSeries{
			Name:    category,
			Style:   chart.Style{StrokeColor: chart.GetDefaultColor(i), StrokeWidth: 2},
			XValues: dates,
			YValues: values,
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("CEM Scores (Last %d days)", len(scores)),
		Width:  1024,
		Height: 576,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 220},
		},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cateringSection(c model.CateringRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s catering order*\n%s at %s\n%s %s", orderLabel(c.OrderType), c.Date, c.Time, c.CustomerName, c.Phone)
	if c.Address != "" {
		b.WriteString("\n" + c.Address)
	}
	if c.Notes != "" {
		b.WriteString("\n_" + c.Notes + "_")
	}
	return b.String()
}

func orderLabel(t model.OrderType) string {
	switch t {
	case model.OrderPickup:
		return "Pickup"
	case model.OrderADP:
		return "ADP"
	}
	return "Delivery"
}

func title(kind model.Kind) string {
	switch kind {
	case model.KindCEM:
		return "CEM Update"
	case model.KindCatering:
		return "Catering Order"
	case model.KindAllocation:
		return "Allocation Notification"
	case model.KindOutOfStock:
		return "Out of Stock Notification"
	}
	return string(kind)
}
