// Package filter matches raw messages against header and body patterns. The
// mbox mailbox uses it to answer sender/subject searches.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Options holds header regular expressions that must all match.
type Options struct {
	IncludeHeader []string
}

// Filter holds compiled patterns.
type Filter struct {
	includeHeader []*regexp.Regexp
}

// ForSender builds options matching messages whose From header contains
// sender and whose Subject header contains subject. Empty values are ignored.
func ForSender(sender, subject string) Options {
	var opts Options
	if sender = strings.TrimSpace(sender); sender != "" {
		opts.IncludeHeader = append(opts.IncludeHeader, headerPattern("From", sender))
	}
	if subject = strings.TrimSpace(subject); subject != "" {
		opts.IncludeHeader = append(opts.IncludeHeader, headerPattern("Subject", subject))
	}
	return opts
}

func headerPattern(name, value string) string {
	return `(?im)^` + regexp.QuoteMeta(name) + `:.*` + regexp.QuoteMeta(value)
}

// New creates a Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	return &Filter{includeHeader: includeHeader}, nil
}

// Allows reports whether a message with the given raw header passes.
func (f *Filter) Allows(header []byte) bool {
	for _, re := range f.includeHeader {
		if !re.Match(header) {
			return false
		}
	}
	return true
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
