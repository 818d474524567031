package requirement

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

var (
	clauseRegexp  = regexp.MustCompile(`^(~=|===|==|!=|<=|>=|<|>)\s*(\S+)$`)
	releaseRegexp = regexp.MustCompile(`^(?:\d+!)?(\d+(?:\.\d+)*)`)
)

// go-version spells the PEP 440 operators differently.
var operatorMap = map[string]string{
	"==": "=",
	"!=": "!=",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
	"~=": "~>",
}

type clause struct {
	op  string
	raw string
	// version and constraint are set for ordinary comparisons. constraint
	// holds the go-version rule for the release and pre-release parts.
	version    *model.Version
	constraint version.Constraints
	// prefix is set for "==X.Y.*" and "!=X.Y.*".
	prefix []int
	epoch  int
}

// Specifier is a comma-separated list of version clauses, all of which must
// hold. The zero value accepts every version.
type Specifier struct {
	clauses []clause
}

// ParseSpecifier parses text such as ">=1.0, <2.0" or "~=2.2".
func ParseSpecifier(text string) (Specifier, error) {
	var s Specifier
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return Specifier{}, err
		}
		s.clauses = append(s.clauses, c)
	}
	return s, nil
}

// MustParseSpecifier is like ParseSpecifier but panics on error.
func MustParseSpecifier(text string) Specifier {
	s, err := ParseSpecifier(text)
	if err != nil {
		panic(err)
	}
	return s
}

func parseClause(text string) (clause, error) {
	m := clauseRegexp.FindStringSubmatch(text)
	if m == nil {
		return clause{}, errutils.Wrapf(errutils.ErrInvalidRequirement, "invalid version clause %q", text)
	}
	c := clause{op: m[1], raw: m[2]}

	switch {
	case c.op == "===":
		return c, nil
	case strings.HasSuffix(c.raw, ".*"):
		if c.op != "==" && c.op != "!=" {
			return clause{}, errutils.Wrapf(errutils.ErrInvalidRequirement, "wildcard not allowed with %s in %q", c.op, text)
		}
		trimmed := strings.TrimSuffix(c.raw, ".*")
		prefix, err := releaseSegments(trimmed)
		v := model.ParseVersion(trimmed)
		if err != nil || len(prefix) == 0 || v == nil {
			return clause{}, errutils.Wrapf(errutils.ErrInvalidRequirement, "invalid wildcard version %q", text)
		}
		c.prefix = prefix
		c.epoch = v.Epoch()
		return c, nil
	}

	if c.op == "~=" {
		segs, err := releaseSegments(c.raw)
		if err != nil || len(segs) < 2 {
			return clause{}, errutils.Wrapf(errutils.ErrInvalidRequirement, "~= needs at least two release segments in %q", text)
		}
	}

	c.version = model.ParseVersion(c.raw)
	if c.version == nil {
		return clause{}, errutils.Wrapf(errutils.ErrInvalidRequirement, "invalid version in clause %q", text)
	}
	constraint, err := version.NewConstraint(operatorMap[c.op] + " " + c.version.Base().Original())
	if err != nil {
		return clause{}, errutils.Wrapf(errutils.ErrInvalidRequirement, "invalid version clause %q: %v", text, err)
	}
	c.constraint = constraint
	return c, nil
}

// Contains reports whether the raw version string satisfies every clause.
// A version go-version cannot parse only satisfies "===" clauses.
func (s Specifier) Contains(raw string) bool {
	if len(s.clauses) == 0 {
		return true
	}
	v := model.ParseVersion(raw)
	for _, c := range s.clauses {
		if !c.matches(raw, v) {
			return false
		}
	}
	return true
}

// Empty reports whether the specifier has no clauses.
func (s Specifier) Empty() bool {
	return len(s.clauses) == 0
}

// String renders the clauses back in PEP 440 form.
func (s Specifier) String() string {
	parts := make([]string, 0, len(s.clauses))
	for _, c := range s.clauses {
		parts = append(parts, c.op+c.raw)
	}
	return strings.Join(parts, ",")
}

func (c clause) matches(raw string, v *model.Version) bool {
	if c.op == "===" {
		return strings.TrimSpace(raw) == c.raw
	}
	if v == nil {
		return false
	}
	if c.prefix != nil {
		match := v.Epoch() == c.epoch && hasPrefix(v.Segments(), c.prefix)
		if c.op == "!=" {
			return !match
		}
		return match
	}
	if v.Epoch() != c.version.Epoch() {
		return c.op != "~=" && c.orderedHolds(v.Epoch()-c.version.Epoch())
	}
	if v.Base().Equal(c.version.Base()) && v.Post() != c.version.Post() {
		// Only the post-release differs. ">V" never admits post-releases
		// of V unless V is one itself.
		if c.op == ">" && c.version.Post() < 0 {
			return false
		}
		return c.orderedHolds(v.Post() - c.version.Post())
	}
	return c.constraint.Check(v.Base())
}

// orderedHolds evaluates the operator for a candidate that sorts diff
// (negative, zero or positive) against the clause version.
func (c clause) orderedHolds(diff int) bool {
	switch c.op {
	case "==":
		return diff == 0
	case "!=":
		return diff != 0
	case "<":
		return diff < 0
	case "<=":
		return diff <= 0
	case ">":
		return diff > 0
	case ">=", "~=":
		return diff >= 0
	}
	return false
}

func hasPrefix(segments, prefix []int) bool {
	for i, want := range prefix {
		got := 0
		if i < len(segments) {
			got = segments[i]
		}
		if got != want {
			return false
		}
	}
	return true
}

func releaseSegments(raw string) ([]int, error) {
	m := releaseRegexp.FindStringSubmatch(strings.TrimSpace(strings.TrimPrefix(raw, "v")))
	if m == nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidRequirement, "no release segment in %q", raw)
	}
	parts := strings.Split(m[1], ".")
	segs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errutils.Wrapf(errutils.ErrInvalidRequirement, "release segment %q", p)
		}
		segs = append(segs, n)
	}
	return segs, nil
}
