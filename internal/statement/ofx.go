package statement

import (
	"regexp"
	"strings"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/normalize"
)

// OFX 1.x is SGML: leaf elements have no closing tags, so the file is
// scanned with patterns instead of an XML decoder. OFX 2.x (XML) matches
// the same patterns because closing tags terminate the value capture.
var (
	stmtTrnBlock = regexp.MustCompile(`(?s)<STMTTRN>(.*?)</STMTTRN>`)
	ofxLeafTag   = regexp.MustCompile(`<([A-Z0-9.]+)>([^<\r\n]*)`)
)

// trnTypeKind maps OFX TRNTYPE codes onto transaction kinds. Codes not
// listed here fall back to sign-based inference.
var trnTypeKind = map[string]domain.TransactionKind{
	"CREDIT":      domain.KindCredit,
	"DEBIT":       domain.KindDebit,
	"INT":         domain.KindCredit,
	"DIV":         domain.KindCredit,
	"FEE":         domain.KindDebit,
	"SRVCHG":      domain.KindDebit,
	"DEP":         domain.KindCredit,
	"ATM":         domain.KindDebit,
	"POS":         domain.KindDebit,
	"XFER":        domain.KindTransfer,
	"CHECK":       domain.KindDebit,
	"PAYMENT":     domain.KindDebit,
	"CASH":        domain.KindDebit,
	"DIRECTDEP":   domain.KindCredit,
	"DIRECTDEBIT": domain.KindDebit,
	"REPEATPMT":   domain.KindDebit,
}

// ParseOFX extracts the STMTTRN entries of a bank or credit card
// statement. Entries missing DTPOSTED, TRNAMT or FITID are skipped and
// reported as row errors.
func ParseOFX(content string) (*ParseResult, error) {
	// Drop the SGML header, everything before the OFX root.
	if idx := strings.Index(strings.ToUpper(content), "<OFX>"); idx >= 0 {
		content = content[idx:]
	}

	blocks := stmtTrnBlock.FindAllStringSubmatch(content, -1)

	result := &ParseResult{
		Metadata: Metadata{
			Format:    FormatOFX,
			TotalRows: len(blocks),
		},
	}

	for i, block := range blocks {
		tx, reason := parseOFXEntry(block[1])
		if reason != "" {
			result.Skipped++
			result.RowErrors = append(result.RowErrors, domain.RowError{
				Line:   i + 1,
				Raw:    strings.TrimSpace(block[1]),
				Reason: reason,
			})
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}

	return result, nil
}

func parseOFXEntry(block string) (domain.NormalizedTransaction, string) {
	fields := map[string]string{}
	for _, m := range ofxLeafTag.FindAllStringSubmatch(block, -1) {
		tag := m[1]
		// First occurrence wins.
		if _, seen := fields[tag]; !seen {
			fields[tag] = strings.TrimSpace(m[2])
		}
	}

	posted := fields["DTPOSTED"]
	amount := fields["TRNAMT"]
	fitid := fields["FITID"]
	if posted == "" || amount == "" || fitid == "" {
		return domain.NormalizedTransaction{}, "missing DTPOSTED, TRNAMT or FITID"
	}

	// DTPOSTED may carry a time and timezone suffix (20241025120000[-3:BRT]).
	if len(posted) > 8 {
		posted = posted[:8]
	}
	date, ok := normalize.Date(posted, false)
	if !ok {
		return domain.NormalizedTransaction{}, "invalid DTPOSTED " + fields["DTPOSTED"]
	}

	value, ok := normalize.Value(amount)
	if !ok {
		return domain.NormalizedTransaction{}, "invalid TRNAMT " + amount
	}

	var parts []string
	for _, f := range []string{fields["NAME"], fields["MEMO"]} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	description := normalize.Description(strings.Join(parts, " - "))
	if description == "" {
		return domain.NormalizedTransaction{}, "missing NAME and MEMO"
	}

	kind, known := trnTypeKind[strings.ToUpper(fields["TRNTYPE"])]
	if !known {
		kind = normalize.InferKind("", value)
	}

	return domain.NormalizedTransaction{
		Date:        date,
		Value:       value,
		Description: description,
		Kind:        kind,
		Document:    fields["CHECKNUM"],
		ExternalID:  fitid,
	}, ""
}
