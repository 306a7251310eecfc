package parse

import (
	"strings"
	"time"

	"github.com/mayodev/opsmail/anchor"
	"github.com/mayodev/opsmail/model"
)

const (
	pickupMarker   = "Pickup Order"
	adpMarker      = "ADP Order"
	timeLabel      = "Time:"
	weekdaySuffix  = "day, "
	atMarker       = " at "
	addressMarker  = "Delivery Address"
	customerMarker = "Customer Information"
	nameLabel      = "Name:"
	notesLabel     = "Other Notes:"
	lineEnd        = "\n"
	addressCutset  = ": \t\n"
)

// Catering parses catering order confirmations.
type Catering struct {
	cities []string
}

func NewCatering(cities []string) *Catering {
	if len(cities) == 0 {
		cities = DefaultCities
	}
	return &Catering{cities: append([]string(nil), cities...)}
}

func (p *Catering) Kind() model.Kind { return model.KindCatering }

func (p *Catering) Parse(body string, _ time.Time) (model.Record, error) {
	if emptyBody(body) {
		return nil, missing(model.KindCatering, "body", "empty body")
	}
	// The last field may sit on the final line.
	body += lineEnd

	rec := model.CateringRecord{OrderType: orderType(body)}

	timeIdx, ok := anchor.Index(body, timeLabel, 0)
	if !ok {
		return nil, missing(model.KindCatering, "date", "label \"Time:\" not found")
	}
	if rec.Date, ok = anchor.SliceBetween(body, weekdaySuffix, atMarker, timeIdx); !ok || rec.Date == "" {
		return nil, missing(model.KindCatering, "date", "no weekday date after time label")
	}
	if rec.Time, ok = anchor.SliceBetween(body, atMarker, lineEnd, timeIdx); !ok || rec.Time == "" {
		return nil, missing(model.KindCatering, "time", "no time after \" at \"")
	}

	customerIdx, ok := anchor.Index(body, customerMarker, 0)
	if !ok {
		return nil, missing(model.KindCatering, "customer_name", "customer section not found")
	}
	if rec.CustomerName, ok = anchor.SliceBetween(body, nameLabel, lineEnd, customerIdx); !ok || rec.CustomerName == "" {
		return nil, missing(model.KindCatering, "customer_name", "no name in customer section")
	}
	if rec.Phone, ok = NormalizePhone(body[customerIdx:]); !ok {
		return nil, missing(model.KindCatering, "phone", "no US phone number in customer section")
	}
	if notes, ok := anchor.SliceBetween(body, notesLabel, lineEnd, customerIdx); ok {
		rec.Notes = notes
	}

	if rec.OrderType != model.OrderPickup {
		rec.Address = p.address(body)
	}

	if err := checkComplete(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func orderType(body string) model.OrderType {
	switch {
	case strings.Contains(body, pickupMarker):
		return model.OrderPickup
	case strings.Contains(body, adpMarker):
		return model.OrderADP
	default:
		return model.OrderDelivery
	}
}

func (p *Catering) address(body string) string {
	raw, ok := anchor.SliceBetween(body, addressMarker, customerMarker, 0)
	if !ok {
		return ""
	}
	addr := anchor.Collapse(strings.TrimLeft(raw, addressCutset))
	return InsertCityComma(addr, p.cities)
}
