// Package requirement parses dependency declarations as they appear in
// Requires-Dist metadata lines (PEP 508) and evaluates their version
// specifiers (PEP 440) against stored artifact versions.
package requirement

import (
	"regexp"
	"strings"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

var nameAndRest = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(.*)$`)

// Parse parses one dependency declaration such as
// `requests[socks] (>=2.8.1,<3) ; python_version >= "3.8"`.
// Direct URL references (`name @ url`) are accepted and carry no specifier.
func Parse(raw string) (model.DependencySpec, error) {
	spec := model.DependencySpec{Raw: strings.TrimSpace(raw)}
	text := spec.Raw

	if i := strings.Index(text, ";"); i >= 0 {
		spec.Marker = strings.TrimSpace(text[i+1:])
		text = strings.TrimSpace(text[:i])
	}

	m := nameAndRest.FindStringSubmatch(text)
	if m == nil {
		return spec, errutils.Wrapf(errutils.ErrInvalidRequirement, "missing package name in %q", raw)
	}
	spec.Name = m[1]
	rest := strings.TrimSpace(m[2])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return spec, errutils.Wrapf(errutils.ErrInvalidRequirement, "unterminated extras in %q", raw)
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				spec.Extras = append(spec.Extras, extra)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if strings.HasPrefix(rest, "@") {
		// Direct reference: any stored version satisfies it.
		return spec, nil
	}

	if strings.HasPrefix(rest, "(") {
		if !strings.HasSuffix(rest, ")") {
			return spec, errutils.Wrapf(errutils.ErrInvalidRequirement, "unbalanced parenthesis in %q", raw)
		}
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}

	if rest != "" {
		if _, err := ParseSpecifier(rest); err != nil {
			return spec, errutils.Wrapf(err, "in %q", raw)
		}
		spec.Specifier = normalizeSpecifierText(rest)
	}
	return spec, nil
}

// normalizeSpecifierText removes whitespace so that ">= 1.0 , < 2" reads ">=1.0,<2".
func normalizeSpecifierText(s string) string {
	return strings.Join(strings.Fields(s), "")
}
