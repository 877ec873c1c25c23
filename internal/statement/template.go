package statement

// ColumnMapping pins each semantic field to a 0-based CSV column index.
// Nil entries fall back to header-name matching.
type ColumnMapping struct {
	Date             *int `json:"data,omitempty"`
	Description      *int `json:"descricao,omitempty"`
	Value            *int `json:"valor,omitempty"`
	Credit           *int `json:"credito,omitempty"`
	Debit            *int `json:"debito,omitempty"`
	Balance          *int `json:"saldo,omitempty"`
	Document         *int `json:"documento,omitempty"`
	OriginalValue    *int `json:"valor_original,omitempty"`
	OriginalCurrency *int `json:"moeda_original,omitempty"`
}

// Col wraps a column index for a mapping entry.
func Col(i int) *int { return &i }

// resolvesRequired reports whether the mapping pins every field the
// parser needs, so rows can be read without any header row.
func (m ColumnMapping) resolvesRequired() bool {
	return m.Date != nil && m.Description != nil &&
		(m.Value != nil || m.Credit != nil || m.Debit != nil)
}

// Template is a saved parsing profile for a known institution. When an
// import supplies one, separator and header detection are skipped and the
// column mapping is applied directly. The zero value of each field means
// "autodetect".
type Template struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"nome"`
	Separator rune   `json:"separador,omitempty"`
	// HeaderIndex is the 0-based header row; nil means detect.
	HeaderIndex *int `json:"linha_cabecalho,omitempty"`
	// MonthFirst flips ambiguous dates to MM/DD/YYYY. Off by default,
	// matching the Brazilian day-first convention.
	MonthFirst bool          `json:"mes_primeiro,omitempty"`
	Columns    ColumnMapping `json:"colunas"`
}
