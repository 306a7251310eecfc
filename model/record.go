package model

import (
	"time"
)

// Kind identifies a vendor notification format.
type Kind string

const (
	KindCEM        Kind = "cem"
	KindCatering   Kind = "catering"
	KindAllocation Kind = "allocation"
	KindOutOfStock Kind = "oos"
)

// Kinds lists every notification kind in polling order.
var Kinds = []Kind{KindCEM, KindCatering, KindAllocation, KindOutOfStock}

func (k Kind) Valid() bool {
	switch k {
	case KindCEM, KindCatering, KindAllocation, KindOutOfStock:
		return true
	}
	return false
}

type Provenance string

const (
	Complete Provenance = "complete"
	Partial  Provenance = "partial"
)

// Record is one value extracted from a notification email. Implementations
// are ScoreRecord, CateringRecord and StockRecord.
type Record interface {
	Kind() Kind
	// Missing names the required fields that are empty.
	Missing() []string
}

// ProvenanceOf reports whether every required field of r is present.
func ProvenanceOf(r Record) Provenance {
	if len(r.Missing()) > 0 {
		return Partial
	}
	return Complete
}

// Score is one survey category and its percentage.
type Score struct {
	Category string
	Percent  int
}

type ScoreRecord struct {
	Date        time.Time
	Scores      []Score
	Respondents int
}

func (ScoreRecord) Kind() Kind { return KindCEM }

func (r ScoreRecord) Missing() []string {
	var missing []string
	if r.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(r.Scores) == 0 {
		missing = append(missing, "scores")
	}
	for _, s := range r.Scores {
		if s.Category == "" || s.Percent < 0 || s.Percent > 100 {
			missing = append(missing, "score")
			break
		}
	}
	if r.Respondents <= 0 {
		missing = append(missing, "respondents")
	}
	return missing
}

// Percent returns the score for category and whether it was present.
func (r ScoreRecord) Percent(category string) (int, bool) {
	for _, s := range r.Scores {
		if s.Category == category {
			return s.Percent, true
		}
	}
	return 0, false
}

// Day truncates t to a calendar day in UTC, the resolution used for score dates.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type OrderType string

const (
	OrderPickup   OrderType = "pickup"
	OrderDelivery OrderType = "delivery"
	OrderADP      OrderType = "adp"
)

type CateringRecord struct {
	OrderType    OrderType
	Date         string
	Time         string
	CustomerName string
	Phone        string
	// Address is only set for delivery and ADP orders.
	Address string
	Notes   string
}

func (CateringRecord) Kind() Kind { return KindCatering }

func (r CateringRecord) Missing() []string {
	var missing []string
	if r.OrderType == "" {
		missing = append(missing, "order_type")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.Time == "" {
		missing = append(missing, "time")
	}
	if r.CustomerName == "" {
		missing = append(missing, "customer_name")
	}
	if r.Phone == "" {
		missing = append(missing, "phone")
	}
	if r.OrderType == OrderDelivery && r.Address == "" {
		missing = append(missing, "address")
	}
	return missing
}

type StockRecord struct {
	StockKind     Kind
	ItemNumber    string
	ItemName      string
	EffectiveDate string
}

func (r StockRecord) Kind() Kind { return r.StockKind }

func (r StockRecord) Missing() []string {
	var missing []string
	if r.StockKind != KindAllocation && r.StockKind != KindOutOfStock {
		missing = append(missing, "kind")
	}
	if r.ItemNumber == "" {
		missing = append(missing, "item_number")
	}
	if r.ItemName == "" {
		missing = append(missing, "item_name")
	}
	if r.EffectiveDate == "" {
		missing = append(missing, "effective_date")
	}
	return missing
}

// Metric is an operational measurement paired with its goal.
type Metric struct {
	Name  string
	Value float64
	Goal  float64
}
