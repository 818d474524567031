package model

import (
	"cmp"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

var (
	devSuffix  = regexp.MustCompile(`[._-]?dev(\d*)`)
	postSuffix = regexp.MustCompile(`[._-]?(post|rev|r)(\d+)`)
)

// Version is a parsed Python package version. go-version orders the
// release and pre-release parts; the epoch is compared before them and the
// post-release number after them. Local labels never affect ordering.
type Version struct {
	base  *version.Version
	epoch int
	post  int
}

// ParseVersion parses a Python package version. ".devN" becomes a
// pre-release. Returns nil for versions go-version cannot represent.
func ParseVersion(raw string) *Version {
	epoch, post, rest, ok := splitVersion(raw)
	if !ok {
		return nil
	}
	base, err := version.NewVersion(rest)
	if err != nil {
		return nil
	}
	return &Version{base: base, epoch: epoch, post: post}
}

// Base returns the version without its epoch and post-release, as
// go-version parsed it. Local labels are kept as build metadata.
func (v *Version) Base() *version.Version {
	return v.base
}

// Epoch returns the "N!" prefix, 0 when absent.
func (v *Version) Epoch() int {
	return v.epoch
}

// Post returns the post-release number, -1 when absent.
func (v *Version) Post() int {
	return v.post
}

// Segments returns the release segments.
func (v *Version) Segments() []int {
	return v.base.Segments()
}

// Prerelease returns the pre-release part, empty for final releases.
func (v *Version) Prerelease() string {
	return v.base.Prerelease()
}

// Compare returns -1, 0 or 1 as v sorts before, equal to or after o.
func (v *Version) Compare(o *Version) int {
	if c := cmp.Compare(v.epoch, o.epoch); c != 0 {
		return c
	}
	if c := v.base.Compare(o.base); c != 0 {
		return c
	}
	return cmp.Compare(v.post, o.post)
}

// Equal reports whether v and o sort equal.
func (v *Version) Equal(o *Version) bool {
	return v.Compare(o) == 0
}

// GreaterThan reports whether v sorts after o.
func (v *Version) GreaterThan(o *Version) bool {
	return v.Compare(o) > 0
}

// splitVersion takes the epoch and post-release off raw and rewrites the
// rest into go-version syntax.
func splitVersion(raw string) (epoch, post int, rest string, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "v")
	if i := strings.Index(s, "!"); i >= 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil || n < 0 {
			return 0, 0, "", false
		}
		epoch = n
		s = s[i+1:]
	}
	local := ""
	if i := strings.Index(s, "+"); i >= 0 {
		local = s[i+1:]
		s = s[:i]
	}
	post = -1
	if m := postSuffix.FindStringSubmatchIndex(s); m != nil {
		n, err := strconv.Atoi(s[m[4]:m[5]])
		if err != nil {
			return 0, 0, "", false
		}
		post = n
		s = s[:m[0]] + s[m[1]:]
	}
	s = devSuffix.ReplaceAllString(s, "-dev$1")
	if local != "" {
		s += "+" + strings.ReplaceAll(strings.ReplaceAll(local, "_", "."), "-", ".")
	}
	return epoch, post, s, true
}
