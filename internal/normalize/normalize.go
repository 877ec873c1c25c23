// Package normalize converts raw statement fields into canonical form
// before deduplication and classification. Dates become ISO (YYYY-MM-DD),
// values become decimal float64, descriptions become uppercase ASCII.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

var (
	digitsOnly  = regexp.MustCompile(`^\d{8}$`)
	brDate      = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})$`)
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	nonWordChar = regexp.MustCompile(`[^A-Za-z0-9_\s*\-/]`)
	multiSpace  = regexp.MustCompile(`\s+`)

	// NFD decomposition followed by removal of combining marks strips
	// accents from Portuguese descriptions (São -> Sao).
	stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Date parses a statement date in DD/MM/YYYY, DD-MM-YYYY, YYYYMMDD or
// ISO format and returns it as YYYY-MM-DD. When dayFirst is false the
// slash/dash form is read as MM/DD/YYYY instead. Returns false when the
// input does not look like a date.
func Date(s string, dayFirst bool) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}

	if digitsOnly.MatchString(trimmed) {
		year, month, day := trimmed[0:4], trimmed[4:6], trimmed[6:8]
		if !validMonthDay(month, day) {
			return "", false
		}
		return year + "-" + month + "-" + day, true
	}

	if m := brDate.FindStringSubmatch(trimmed); m != nil {
		first, second, year := m[1], m[2], m[3]
		day, month := first, second
		if !dayFirst {
			day, month = second, first
		}
		day = padTwo(day)
		month = padTwo(month)
		if !validMonthDay(month, day) {
			return "", false
		}
		return year + "-" + month + "-" + day, true
	}

	if isoDate.MatchString(trimmed) {
		if !validMonthDay(trimmed[5:7], trimmed[8:10]) {
			return "", false
		}
		return trimmed, true
	}

	return "", false
}

func padTwo(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func validMonthDay(month, day string) bool {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return false
	}
	return true
}

// Value parses a monetary amount in Brazilian (1.234,56) or US (1234.56)
// format. Currency prefixes (R$, USD) and embedded spaces are ignored.
// Parentheses and a leading minus both mark negative amounts. Returns
// false when the input is not a number.
func Value(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, false
	}

	cleaned = strings.TrimPrefix(cleaned, "R$")
	cleaned = strings.TrimPrefix(cleaned, "USD")
	cleaned = strings.Join(strings.Fields(cleaned), "")

	negative := strings.HasPrefix(cleaned, "-") || strings.HasPrefix(cleaned, "(")
	cleaned = strings.TrimPrefix(cleaned, "-")
	cleaned = strings.TrimPrefix(cleaned, "(")
	cleaned = strings.TrimSuffix(cleaned, ")")

	// A comma marks Brazilian notation: dots are thousands separators.
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		return -v, true
	}
	return v, true
}

// Description canonicalizes a transaction description for hashing and
// rule matching: uppercase, accents stripped, special characters other
// than * - / replaced by spaces, runs of whitespace collapsed. The
// result is stable under repeated application.
func Description(s string) string {
	if s == "" {
		return ""
	}

	out := strings.ToUpper(strings.TrimSpace(s))
	if stripped, _, err := transform.String(stripAccents, out); err == nil {
		out = stripped
	}
	out = nonWordChar.ReplaceAllString(out, " ")
	out = multiSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// BankValue computes the signed amount for statements that report
// credit and debit in separate columns. A missing column counts as
// zero, so the result is credit minus debit.
func BankValue(credit, debit float64) float64 {
	return credit - debit
}

// InferKind derives the transaction kind from keywords in the
// description, falling back to the sign of the value.
func InferKind(description string, value float64) domain.TransactionKind {
	desc := strings.ToUpper(description)

	for _, kw := range []string{"ESTORNO", "CHARGEBACK", "CANCELAMENTO"} {
		if strings.Contains(desc, kw) {
			return domain.KindReversal
		}
	}
	for _, kw := range []string{"TRANSF", "TED", "DOC", "PIX"} {
		if strings.Contains(desc, kw) {
			return domain.KindTransfer
		}
	}
	if value >= 0 {
		return domain.KindCredit
	}
	return domain.KindDebit
}
