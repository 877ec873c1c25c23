package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/normalize"
)

// ParseResult is the outcome of parsing one statement file. Transactions
// carry no AccountID yet; the import pipeline stamps it before hashing.
type ParseResult struct {
	Transactions []domain.NormalizedTransaction
	Skipped      int
	RowErrors    []domain.RowError
	Metadata     Metadata
}

// Metadata describes what the parser detected about the file.
type Metadata struct {
	Format      Format
	Separator   rune
	HeaderIndex int
	TotalRows   int
}

// Column-name candidates tried in order when no template maps the field.
var (
	dateColumns        = []string{"DATA", "DATE"}
	descriptionColumns = []string{"HISTORICO", "DESCRICAO", "DESCRIPTION", "MEMO"}
	valueColumns       = []string{"VALOR", "AMOUNT"}
	creditColumns      = []string{"CREDITO", "CREDIT"}
	debitColumns       = []string{"DEBITO", "DEBIT"}
	balanceColumns     = []string{"SALDO", "BALANCE"}
	documentColumns    = []string{"DOCTO", "DOCUMENTO", "DOC"}
	origValueColumns   = []string{"VALOR(US$)", "VALOR(USD)", "ORIGINAL AMOUNT"}
	origCurrencyCols   = []string{"MOEDA", "CURRENCY"}
)

// ParseCSV parses a CSV statement. With a nil template everything is
// detected from the content; with a template the saved separator, header
// position and column mapping take precedence. Rows that cannot be
// interpreted are reported in RowErrors, never aborting the whole file.
// Returns domain.ErrHeaderNotFound (wrapped) when no header row exists.
func ParseCSV(content string, tmpl *Template) (*ParseResult, error) {
	sep := rune(0)
	if tmpl != nil {
		sep = tmpl.Separator
	}
	if sep == 0 {
		sep = DetectSeparator(separatorCandidateLine(content))
	}

	records, err := readRecords(content, sep)
	if err != nil {
		return nil, fmt.Errorf("ParseCSV: %w", err)
	}

	headerIdx := -1
	if tmpl != nil && tmpl.HeaderIndex != nil {
		headerIdx = *tmpl.HeaderIndex
	}
	if headerIdx < 0 {
		headerIdx, err = DetectHeaderRow(records)
		if err != nil {
			if tmpl == nil || !tmpl.Columns.resolvesRequired() {
				return nil, fmt.Errorf("ParseCSV: %w", err)
			}
			// The mapping pins every required column, so the file
			// is read without a header row.
			headerIdx = -1
		}
	}
	if headerIdx >= len(records) {
		return nil, fmt.Errorf("ParseCSV: header row %d beyond end of file: %w", headerIdx, domain.ErrHeaderNotFound)
	}

	var headers []string
	if headerIdx >= 0 {
		headers = make([]string, len(records[headerIdx]))
		for i, h := range records[headerIdx] {
			headers[i] = strings.ToUpper(strings.TrimSpace(h))
		}
	}

	dayFirst := true
	if tmpl != nil && tmpl.MonthFirst {
		dayFirst = false
	}

	result := &ParseResult{
		Metadata: Metadata{
			Format:      FormatCSV,
			Separator:   sep,
			HeaderIndex: headerIdx,
			TotalRows:   len(records),
		},
	}

	for i := headerIdx + 1; i < len(records); i++ {
		row := records[i]
		if len(row) < 3 || allBlank(row) {
			result.Skipped++
			continue
		}

		tx, reason := parseRow(row, headers, tmpl, dayFirst)
		if reason != "" {
			result.Skipped++
			result.RowErrors = append(result.RowErrors, domain.RowError{
				Line:   i + 1,
				Raw:    strings.Join(row, string(sep)),
				Reason: reason,
			})
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}

	return result, nil
}

func readRecords(content string, sep rune) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				// Tolerate the malformed line and keep going.
				continue
			}
			return nil, err
		}
		if allBlank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row, headers []string, tmpl *Template, dayFirst bool) (domain.NormalizedTransaction, string) {
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			fields[h] = strings.TrimSpace(row[i])
		}
	}

	var mapping ColumnMapping
	if tmpl != nil {
		mapping = tmpl.Columns
	}

	dateStr := pick(row, fields, mapping.Date, dateColumns)
	date, ok := normalize.Date(dateStr, dayFirst)
	if !ok {
		return domain.NormalizedTransaction{}, "invalid or missing date"
	}

	description := pick(row, fields, mapping.Description, descriptionColumns)
	if strings.TrimSpace(description) == "" {
		return domain.NormalizedTransaction{}, "missing description"
	}

	var value float64
	if raw := pick(row, fields, mapping.Value, valueColumns); raw != "" {
		v, ok := normalize.Value(raw)
		if !ok {
			return domain.NormalizedTransaction{}, "invalid value " + raw
		}
		value = v
	} else {
		creditRaw := pick(row, fields, mapping.Credit, creditColumns)
		debitRaw := pick(row, fields, mapping.Debit, debitColumns)
		if creditRaw == "" && debitRaw == "" {
			return domain.NormalizedTransaction{}, "no value, credit or debit column"
		}
		credit, _ := normalize.Value(creditRaw)
		debit, _ := normalize.Value(debitRaw)
		value = normalize.BankValue(credit, debit)
	}

	tx := domain.NormalizedTransaction{
		Date:        date,
		Value:       value,
		Description: normalize.Description(description),
		Kind:        normalize.InferKind(description, value),
	}

	if raw := pick(row, fields, mapping.Balance, balanceColumns); raw != "" {
		if balance, ok := normalize.Value(raw); ok {
			tx.BalanceAfter = &balance
		}
	}
	if doc := pick(row, fields, mapping.Document, documentColumns); doc != "" {
		tx.Document = doc
	}
	if raw := pick(row, fields, mapping.OriginalValue, origValueColumns); raw != "" {
		if orig, ok := normalize.Value(raw); ok {
			tx.OriginalValue = &orig
			tx.OriginalCurrency = pick(row, fields, mapping.OriginalCurrency, origCurrencyCols)
			if tx.OriginalCurrency == "" {
				tx.OriginalCurrency = inferCurrency(headers)
			}
		}
	}

	return tx, ""
}

// pick resolves a field value, template column index first, then the
// common header names.
func pick(row []string, fields map[string]string, idx *int, names []string) string {
	if idx != nil && *idx >= 0 && *idx < len(row) {
		if v := strings.TrimSpace(row[*idx]); v != "" {
			return v
		}
	}
	for _, name := range names {
		if v, ok := fields[name]; ok && v != "" {
			return v
		}
	}
	return ""
}

// inferCurrency guesses the original currency from header names such as
// "VALOR(US$)".
func inferCurrency(headers []string) string {
	for _, h := range headers {
		switch {
		case strings.Contains(h, "USD"), strings.Contains(h, "US$"):
			return "USD"
		case strings.Contains(h, "EUR"):
			return "EUR"
		case strings.Contains(h, "GBP"):
			return "GBP"
		}
	}
	return "USD"
}

// separatorCandidateLine picks the line used for separator detection.
// Statements often open with free-text preamble (bank name, account),
// so the first line with enough separator occurrences wins over the
// literal first line.
func separatorCandidateLine(content string) string {
	first := ""
	for i, line := range strings.Split(content, "\n") {
		if i >= 20 {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first == "" {
			first = line
		}
		for _, sep := range []string{";", ",", "\t", "|"} {
			if strings.Count(line, sep) >= 3 {
				return line
			}
		}
	}
	return first
}

func allBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
