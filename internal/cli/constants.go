package cli

// Formatting of tabular output.
const (
	// TabWidth is the padding between tabwriter columns.
	TabWidth = 2
)
