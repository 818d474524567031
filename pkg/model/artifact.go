// Package model provides the data structures shared by the wheelhouse store
// components: artifact filenames as they appear in the store, and the
// dependency specifications declared by artifact metadata.
package model

import (
	"regexp"
	"strings"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// ArtifactKind tells wheels apart from source distributions.
type ArtifactKind string

const (
	// KindWheel is a built distribution (.whl).
	KindWheel ArtifactKind = "wheel"
	// KindSdist is a source distribution (.tar.gz, .zip, ...).
	KindSdist ArtifactKind = "sdist"
)

// Artifact extensions recognized in the store.
const (
	WheelExt = ".whl"
	TarGzExt = ".tar.gz"
	TgzExt   = ".tgz"
	TarBz2   = ".tar.bz2"
	ZipExt   = ".zip"
)

var sdistExtensions = []string{TarGzExt, TgzExt, TarBz2, ZipExt}

// ArtifactFile is a stored artifact identified by its filename
// `{name}-{version}-{...}.{ext}`.
type ArtifactFile struct {
	Filename string
	// Name is the distribution name as written in the filename.
	Name    string
	Version string
	Kind    ArtifactKind
}

// ParseArtifactFilename splits a wheel or sdist filename into name and version.
// Wheels are split on '-' (their names use '_' instead); sdists are split on
// the last '-' that is followed by a digit, since their names may contain '-'.
func ParseArtifactFilename(filename string) (*ArtifactFile, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.HasPrefix(filename, ".") {
		return nil, errutils.ErrInvalidFilenameWithName(filename)
	}

	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, WheelExt) {
		stem := filename[:len(filename)-len(WheelExt)]
		parts := strings.Split(stem, "-")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, errutils.ErrInvalidFilenameWithName(filename)
		}
		return &ArtifactFile{Filename: filename, Name: parts[0], Version: parts[1], Kind: KindWheel}, nil
	}

	for _, ext := range sdistExtensions {
		if !strings.HasSuffix(lower, ext) {
			continue
		}
		stem := filename[:len(filename)-len(ext)]
		for i := len(stem) - 2; i > 0; i-- {
			if stem[i] == '-' && isDigit(stem[i+1]) {
				return &ArtifactFile{Filename: filename, Name: stem[:i], Version: stem[i+1:], Kind: KindSdist}, nil
			}
		}
		return nil, errutils.ErrInvalidFilenameWithName(filename)
	}

	return nil, errutils.ErrInvalidFilenameWithName(filename)
}

// IsArtifactFilename reports whether filename parses as a stored artifact.
func IsArtifactFilename(filename string) bool {
	_, err := ParseArtifactFilename(filename)
	return err == nil
}

// NormalizedName returns the PEP 503 form of the artifact's distribution name.
func (a *ArtifactFile) NormalizedName() string {
	return NormalizeName(a.Name)
}

// GetVersion returns the parsed version of this artifact, or nil when the
// version token is not understood.
func (a *ArtifactFile) GetVersion() *Version {
	return ParseVersion(a.Version)
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName implements PEP 503 name normalization: lowercase with runs
// of '-', '_' and '.' collapsed into a single '-'.
func NormalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(strings.TrimSpace(name), "-"))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
