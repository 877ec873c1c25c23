package statement

// Parse detects the file format and dispatches to the right parser. The
// template, when given, only applies to CSV; OFX carries its own
// structure.
func Parse(content string, tmpl *Template) (*ParseResult, error) {
	format, err := DetectFormat(content)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatOFX:
		return ParseOFX(content)
	default:
		return ParseCSV(content, tmpl)
	}
}
