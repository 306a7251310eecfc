package parse

import (
	"strings"
	"time"

	"github.com/mayodev/opsmail/anchor"
	"github.com/mayodev/opsmail/model"
)

// stockLayout holds what differs between the allocation and out-of-stock
// templates. Markers are matched case-insensitively.
type stockLayout struct {
	kind         model.Kind
	numberMarker string
	prefix       string
	nameEnd      string
	dateEnd      string
}

var (
	allocationLayout = stockLayout{
		kind:         model.KindAllocation,
		numberMarker: "item #",
		prefix:       "A",
		nameEnd:      "This item was",
		dateEnd:      "The product is",
	}
	outOfStockLayout = stockLayout{
		kind:         model.KindOutOfStock,
		numberMarker: "#",
		prefix:       "O",
		nameEnd:      "this item was",
		dateEnd:      "the product",
	}
)

// Stock parses distribution-center item notices.
type Stock struct {
	layout stockLayout
}

func NewAllocation() *Stock { return &Stock{layout: allocationLayout} }

func NewOutOfStock() *Stock { return &Stock{layout: outOfStockLayout} }

func (p *Stock) Kind() model.Kind { return p.layout.kind }

func (p *Stock) Parse(body string, _ time.Time) (model.Record, error) {
	l := p.layout
	if emptyBody(body) {
		return nil, missing(l.kind, "body", "empty body")
	}

	markerIdx, ok := anchor.IndexFold(body, l.numberMarker, 0)
	if !ok {
		return nil, missing(l.kind, "item_number", "marker "+quote(l.numberMarker)+" not found")
	}
	numberStart := markerIdx + len(l.numberMarker)
	rest := strings.TrimLeft(body[numberStart:], " \t")
	digits := leadingDigits(rest)
	if digits == "" {
		return nil, missing(l.kind, "item_number", "no digits after marker")
	}
	numberEnd := len(body) - len(rest) + len(digits)

	nameEnd, ok := anchor.IndexFold(body, l.nameEnd, numberEnd)
	if !ok {
		return nil, missing(l.kind, "item_name", "sentinel "+quote(l.nameEnd)+" not found")
	}
	name := anchor.Collapse(strings.TrimLeft(body[numberEnd:nameEnd], " \t\n-–:"))

	effective, ok := anchor.SliceBetweenFold(body, "", l.dateEnd, nameEnd)
	if !ok {
		return nil, missing(l.kind, "effective_date", "sentinel "+quote(l.dateEnd)+" not found")
	}
	effective = anchor.Collapse(effective)
	if effective != "" && !strings.HasSuffix(effective, ".") {
		effective += "."
	}

	rec := model.StockRecord{
		StockKind:     l.kind,
		ItemNumber:    l.prefix + digits,
		ItemName:      name,
		EffectiveDate: effective,
	}
	if err := checkComplete(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func quote(s string) string {
	return "\"" + s + "\""
}
