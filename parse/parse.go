// Package parse recovers typed records from decoded vendor notification
// bodies. Each format has its own parser built on the anchor primitives; a
// template change is handled by adding a parser, not by patching offsets.
package parse

import (
	"fmt"
	"strings"
	"time"

	"github.com/mayodev/opsmail/model"
)

// Parser extracts one record from a decoded body. received is the time the
// message arrived and dates records whose body carries no date of its own.
type Parser interface {
	Kind() model.Kind
	Parse(body string, received time.Time) (model.Record, error)
}

// Options carries the template knobs that differ between stores.
type Options struct {
	Categories []string
	Cities     []string
}

// For returns the parser registered for kind.
func For(kind model.Kind, opts Options) (Parser, error) {
	switch kind {
	case model.KindCEM:
		return NewCEM(opts.Categories), nil
	case model.KindCatering:
		return NewCatering(opts.Cities), nil
	case model.KindAllocation:
		return NewAllocation(), nil
	case model.KindOutOfStock:
		return NewOutOfStock(), nil
	}
	return nil, fmt.Errorf("no parser for kind %q", kind)
}

func emptyBody(body string) bool {
	return strings.TrimSpace(body) == ""
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// leadingDigits returns the run of ASCII digits at the start of s.
func leadingDigits(s string) string {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i]
}
