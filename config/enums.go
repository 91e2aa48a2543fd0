package config

//go:generate go tool go-enum --marshal --names

// Requested output document type.
// ENUM(pdf, epub)
type OutputFmt int

// Ext returns file name extension for the document of this type.
func (o OutputFmt) Ext() string {
	switch o {
	case OutputFmtPdf:
		return ".pdf"
	case OutputFmtEpub:
		return ".epub"
	default:
		// this should never happen
		panic("unsupported format requested")
	}
}
