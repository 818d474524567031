package model

// DependencySpec is one dependency declared by an artifact: a package name,
// an optional version specifier (e.g. ">=1.0,<2.0") and an optional
// environment marker. It is extracted at upload time and never persisted.
type DependencySpec struct {
	Name      string   `json:"name"`
	Extras    []string `json:"extras,omitempty"`
	Specifier string   `json:"specifier,omitempty"`
	Marker    string   `json:"marker,omitempty"`
	// Raw is the declaration as written in the metadata.
	Raw string `json:"raw"`
	// Invalid holds the parse error text when Raw could not be understood.
	Invalid string `json:"invalid,omitempty"`
}

// NormalizedName returns the PEP 503 form of the dependency name.
func (d DependencySpec) NormalizedName() string {
	return NormalizeName(d.Name)
}

// Unconditional reports whether the dependency applies regardless of the
// installing environment (no marker).
func (d DependencySpec) Unconditional() bool {
	return d.Marker == ""
}

// String returns the raw declaration.
func (d DependencySpec) String() string {
	return d.Raw
}
