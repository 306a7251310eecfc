package parse

import (
	"strconv"
	"strings"
	"time"

	"github.com/mayodev/opsmail/anchor"
	"github.com/mayodev/opsmail/model"
)

// DefaultCategories is the fixed order in which the CEM digest lists scores.
var DefaultCategories = []string{
	"Likelihood to Return",
	"Fast Service",
	"Order Accuracy",
	"Attentive/Courteous",
	"Cleanliness",
	"Taste",
	"Overall Satisfaction",
}

const (
	percentMarker     = "%"
	respondentsMarker = "n:"
	// percentWindow is how many characters before a percent sign may hold
	// the value; "100", " 85" and ": 0" all fit.
	percentWindow = 3
)

// CEM parses customer-experience survey digests. The i-th percent sign in
// the body belongs to the i-th category.
type CEM struct {
	categories []string
}

func NewCEM(categories []string) *CEM {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &CEM{categories: append([]string(nil), categories...)}
}

func (p *CEM) Kind() model.Kind { return model.KindCEM }

func (p *CEM) Parse(body string, received time.Time) (model.Record, error) {
	if emptyBody(body) {
		return nil, missing(model.KindCEM, "body", "empty body")
	}

	respondents, err := respondentCount(body)
	if err != nil {
		return nil, err
	}

	scores := make([]model.Score, 0, len(p.categories))
	for i, category := range p.categories {
		pos, ok := anchor.FindNth(body, percentMarker, i+1)
		if !ok {
			return nil, missing(model.KindCEM, category, "percent sign not found")
		}
		value, ok := percentBefore(body, pos)
		if !ok {
			return nil, missing(model.KindCEM, category, "no percentage before percent sign")
		}
		scores = append(scores, model.Score{Category: category, Percent: value})
	}

	if received.IsZero() {
		return nil, missing(model.KindCEM, "date", "message has no received date")
	}

	rec := model.ScoreRecord{
		Date:        model.Day(received),
		Scores:      scores,
		Respondents: respondents,
	}
	if err := checkComplete(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// percentBefore reads the 1-3 digit value that ends right before the percent
// sign at pos. Separators such as ": " inside the window are dropped.
func percentBefore(body string, pos int) (int, bool) {
	start := pos - percentWindow
	if start < 0 {
		start = 0
	}
	window := body[start:pos]

	end := len(window)
	i := end
	for i > 0 && isDigit(window[i-1]) {
		i--
	}
	if i == end {
		return 0, false
	}
	// A digit just outside the window means the number is wider than 3.
	if i == 0 && start > 0 && isDigit(body[start-1]) {
		return 0, false
	}

	value, err := strconv.Atoi(window[i:])
	if err != nil || value < 0 || value > 100 {
		return 0, false
	}
	return value, true
}

func respondentCount(body string) (int, error) {
	idx, ok := anchor.Index(body, respondentsMarker, 0)
	if !ok {
		return 0, missing(model.KindCEM, "respondents", "marker \"n:\" not found")
	}
	rest := strings.TrimLeft(body[idx+len(respondentsMarker):], " \t")
	digits := leadingDigits(rest)
	if digits == "" {
		return 0, missing(model.KindCEM, "respondents", "no count after marker")
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, missing(model.KindCEM, "respondents", err.Error())
	}
	return n, nil
}
