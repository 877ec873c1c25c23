// Package statement turns raw bank and card exports (CSV or OFX, unknown
// dialect) into normalized transactions. Detection is content based: the
// file says what it is, the extension is not trusted.
package statement

import (
	"fmt"
	"strings"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// Format is the recognized statement file format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatOFX Format = "ofx"
)

// headerTokens are column names that identify a CSV header row, covering
// the Brazilian bank vocabulary plus the English equivalents card
// exporters use.
var headerTokens = []string{
	"DATA", "HISTORICO", "DESCRICAO", "VALOR", "CREDITO", "DEBITO",
	"DOCTO", "SALDO",
	"DATE", "DESCRIPTION", "MEMO", "AMOUNT", "CREDIT", "DEBIT", "BALANCE",
}

// DetectFormat inspects the file content and decides between OFX and CSV.
// OFX is identified by its SGML/XML markers; anything else with content
// is treated as CSV.
func DetectFormat(content string) (Format, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("DetectFormat: empty file: %w", domain.ErrFormatNotRecognized)
	}

	head := strings.ToUpper(trimmed)
	if len(head) > 4096 {
		head = head[:4096]
	}
	if strings.Contains(head, "OFXHEADER") || strings.Contains(head, "<OFX>") {
		return FormatOFX, nil
	}
	return FormatCSV, nil
}

// DetectSeparator counts candidate separators in a header candidate line
// and picks the most frequent one with at least 3 occurrences. Comma is
// the default when nothing qualifies.
func DetectSeparator(line string) rune {
	candidates := []rune{';', ',', '\t', '|'}
	best := ','
	maxCount := 0
	for _, sep := range candidates {
		count := strings.Count(line, string(sep))
		if count > maxCount && count >= 3 {
			maxCount = count
			best = sep
		}
	}
	return best
}

// DetectHeaderRow scans the first 20 records for a row with at least 3
// fields where some field contains a known column name. Returns
// domain.ErrHeaderNotFound when no row qualifies.
func DetectHeaderRow(records [][]string) (int, error) {
	limit := len(records)
	if limit > 20 {
		limit = 20
	}

	for i := 0; i < limit; i++ {
		fields := records[i]
		if len(fields) < 3 {
			continue
		}
		for _, field := range fields {
			upper := strings.ToUpper(field)
			for _, token := range headerTokens {
				if strings.Contains(upper, token) {
					return i, nil
				}
			}
		}
	}
	return -1, domain.ErrHeaderNotFound
}
