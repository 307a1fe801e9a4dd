// Package parser tokenizes delimited text uploads and interprets raw field values.
// The tokenizer is line based: a quoted field cannot span physical lines.
package parser

import (
	"errors"
	"strings"
)

// Supported delimiters in detection priority order. A later candidate only wins
// with a strictly higher count, so ',' is the default on ties.
var candidateDelimiters = []rune{',', ';', '\t'}

var (
	// ErrMalformedInput is returned when the text has fewer than two non-blank lines
	// (a header line and at least one data line).
	ErrMalformedInput = errors.New("CSV must have a header row and at least one data row")
)

// DetectDelimiter inspects the first line of text and returns the candidate
// delimiter that occurs most often.
func DetectDelimiter(text string) rune {
	firstLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine = text[:idx]
	}

	best := candidateDelimiters[0]
	bestCount := strings.Count(firstLine, string(best))
	for _, d := range candidateDelimiters[1:] {
		if c := strings.Count(firstLine, string(d)); c > bestCount {
			best = d
			bestCount = c
		}
	}
	return best
}

// ParseLine splits a single line into trimmed fields. Double quotes toggle the
// quoted state; inside quotes a doubled quote is a literal quote and the
// delimiter is ordinary text.
func ParseLine(line string, delimiter rune) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == delimiter && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))

	return fields
}

// ParseCSV splits text on LF or CRLF, drops blank lines and tokenizes the rest.
// The first returned row is the header row.
func ParseCSV(text string, delimiter rune) ([][]string, error) {
	lines := strings.Split(text, "\n")

	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, ParseLine(line, delimiter))
	}

	if len(rows) < 2 {
		return nil, ErrMalformedInput
	}
	return rows, nil
}
