package requirement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantName  string
		extras    []string
		specifier string
		marker    string
	}{
		{name: "bare name", raw: "six", wantName: "six"},
		{name: "simple specifier", raw: "foo>=2.0", wantName: "foo", specifier: ">=2.0"},
		{name: "spaced specifier", raw: "bar >= 1.0 , < 2", wantName: "bar", specifier: ">=1.0,<2"},
		{name: "parenthesized", raw: "baz (>=1.0)", wantName: "baz", specifier: ">=1.0"},
		{
			name:      "extras and marker",
			raw:       `requests[socks, security] (>=2.8.1,<3) ; python_version >= "3.8"`,
			wantName:  "requests",
			extras:    []string{"socks", "security"},
			specifier: ">=2.8.1,<3",
			marker:    `python_version >= "3.8"`,
		},
		{name: "dotted name", raw: "zope.interface~=6.1", wantName: "zope.interface", specifier: "~=6.1"},
		{name: "direct reference", raw: "pkg @ https://example.com/pkg-1.0.whl", wantName: "pkg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, spec.Name)
			assert.Equal(t, tt.extras, spec.Extras)
			assert.Equal(t, tt.specifier, spec.Specifier)
			assert.Equal(t, tt.marker, spec.Marker)
			assert.Equal(t, tt.raw, spec.Raw)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		">=1.0",
		"foo[bar",
		"foo (>=1.0",
		"foo >>1",
		"foo ~=1",
		"foo >=1.*",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			assert.ErrorIs(t, err, errutils.ErrInvalidRequirement)
		})
	}
}

func TestSpecifier_Contains(t *testing.T) {
	tests := []struct {
		specifier string
		version   string
		want      bool
	}{
		{"", "anything", true},
		{">=2.0", "1.2.0", false},
		{">=2.0", "2.0.0", true},
		{">=1.0,<2.0", "1.5", true},
		{">=1.0,<2.0", "2.0", false},
		{"==1.2", "1.2.0", true},
		{"!=1.2", "1.2.0", false},
		{"~=2.2", "2.9", true},
		{"~=2.2", "3.0", false},
		{"~=2.2", "2.1", false},
		{"~=1.4.5", "1.4.9", true},
		{"~=1.4.5", "1.5.0", false},
		{"==1.*", "1.9.3", true},
		{"==1.*", "2.0", false},
		{"!=1.3.*", "1.3.1", false},
		{"!=1.3.*", "1.4", true},
		{"===1.0-local", "1.0-local", true},
		{"===1.0-local", "1.0", false},
		{">1.0", "1.0.post1", false},
		{">1.0.post1", "1.0.post2", true},
		{">=1.0.post2", "1.0.post1", false},
		{">=1.0.post2", "1.0.post2", true},
		{">=1.0.post2", "1.1", true},
		{"<1.0.post2", "1.0.post1", true},
		{"<1.0.post2", "1.0.1", false},
		{"==1.0", "1.0.post1", false},
		{"==1.0", "1.0+local", true},
		{"!=1.0", "1.0.post1", true},
		{"<=1.0", "1.0.post1", false},
		{"~=1.4.5", "1.4.5.post1", true},
		{">=2.0", "1!1.0", true},
		{"<2.0", "1!1.0", false},
		{"==1.*", "1!1.0", false},
		{"~=1.0", "1!1.0", false},
		{">=1!1.0", "2.0", false},
		{">=1!1.0", "1!1.2", true},
		{">=1.0", "garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.specifier+" "+tt.version, func(t *testing.T) {
			s, err := ParseSpecifier(tt.specifier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Contains(tt.version))
		})
	}
}

func TestSpecifier_String(t *testing.T) {
	s := MustParseSpecifier(">= 1.0, <2")
	assert.Equal(t, ">=1.0,<2", s.String())
	assert.False(t, s.Empty())
	assert.True(t, MustParseSpecifier("").Empty())
}
