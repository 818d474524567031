// Package index generates a PEP 503 "simple" repository index from the
// artifacts in a local store, in the layout dir2pi produces: one directory
// per normalized project name under the simple directory, holding links to
// the artifacts and an index.html listing them.
package index

import (
	"context"
	"crypto/sha256"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
	"github.com/glorpus-work/wheelhouse/pkg/metadata"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

// IndexFile is the name of the generated HTML files.
const IndexFile = "index.html"

// Generator rewrites the simple index of a local store.
type Generator struct {
	// Root is the store directory holding the artifacts.
	Root string
	// SimpleDir is the index directory (usually Root/simple).
	SimpleDir string
	// Reader, when set, supplies data-requires-python attributes.
	Reader *metadata.Reader
}

// NewGenerator creates a Generator that reads artifact metadata.
func NewGenerator(root, simpleDir string) *Generator {
	return &Generator{
		Root:      root,
		SimpleDir: simpleDir,
		Reader:    metadata.NewReader(),
	}
}

// Link is one anchor of a project page.
type Link struct {
	Filename       string
	Href           string
	SHA256         string
	RequiresPython string
}

// Project is one page of the index.
type Project struct {
	Name  string
	Links []Link
}

// Validate checks that the generator is usable.
func (g *Generator) Validate() error {
	if g.Root == "" {
		return errutils.Wrapf(errutils.ErrInvalidPath, "store root is required")
	}
	if g.SimpleDir == "" {
		return errutils.Wrapf(errutils.ErrInvalidPath, "simple directory is required")
	}
	fi, err := os.Stat(g.Root)
	if err != nil {
		return errutils.Wrapf(errutils.ErrInvalidPath, "store root does not exist: %s", g.Root)
	}
	if !fi.IsDir() {
		return errutils.Wrapf(errutils.ErrInvalidPath, "store root is not a directory: %s", g.Root)
	}
	return nil
}

// Generate scans Root and rewrites SimpleDir so that it lists exactly the
// artifacts present. Project directories for names no longer stored are removed.
func (g *Generator) Generate(ctx context.Context) error {
	if err := g.Validate(); err != nil {
		return err
	}

	projects, err := g.Scan(ctx)
	if err != nil {
		return err
	}

	if err := fsutil.EnsureDir(g.SimpleDir); err != nil {
		return fmt.Errorf("failed to create simple directory: %w", err)
	}

	keep := make(map[string]bool, len(projects))
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		keep[p.Name] = true
		if err := g.writeProject(p); err != nil {
			return fmt.Errorf("failed to write project %s: %w", p.Name, err)
		}
	}

	if err := g.pruneProjects(keep); err != nil {
		return err
	}
	if err := writeHTML(filepath.Join(g.SimpleDir, IndexFile), rootTemplate, projects); err != nil {
		return err
	}

	logger.Debug("Generated simple index", logger.Fields{
		"root":     g.Root,
		"projects": len(projects),
	})
	return nil
}

// Scan groups the artifacts in Root by normalized name, sorted by name
// and then filename.
func (g *Generator) Scan(ctx context.Context) ([]Project, error) {
	entries, err := os.ReadDir(g.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}

	byName := make(map[string][]Link)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		af, err := model.ParseArtifactFilename(e.Name())
		if err != nil {
			continue
		}
		link, err := g.describe(ctx, af)
		if err != nil {
			return nil, err
		}
		name := af.NormalizedName()
		byName[name] = append(byName[name], link)
	}

	projects := make([]Project, 0, len(byName))
	for name, links := range byName {
		sort.Slice(links, func(i, j int) bool { return links[i].Filename < links[j].Filename })
		projects = append(projects, Project{Name: name, Links: links})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

func (g *Generator) describe(ctx context.Context, af *model.ArtifactFile) (Link, error) {
	artifactPath := filepath.Join(g.Root, af.Filename)
	checksum, err := sha256File(artifactPath)
	if err != nil {
		return Link{}, fmt.Errorf("failed to hash %s: %w", af.Filename, err)
	}

	projectDir := filepath.Join(g.SimpleDir, af.NormalizedName())
	rel, err := filepath.Rel(projectDir, artifactPath)
	if err != nil {
		return Link{}, err
	}

	link := Link{
		Filename: af.Filename,
		Href:     filepath.ToSlash(rel),
		SHA256:   checksum,
	}
	if g.Reader != nil {
		// Missing metadata only drops the attribute.
		if md, err := g.Reader.Read(ctx, artifactPath); err == nil {
			link.RequiresPython = md.RequiresPython
		}
	}
	return link, nil
}

func (g *Generator) writeProject(p Project) error {
	projectDir := filepath.Join(g.SimpleDir, p.Name)
	if err := fsutil.EnsureDir(projectDir); err != nil {
		return err
	}

	wanted := make(map[string]bool, len(p.Links)+1)
	wanted[IndexFile] = true
	for _, l := range p.Links {
		wanted[l.Filename] = true
		if err := fsutil.LinkOrCopy(filepath.Join(g.Root, l.Filename), filepath.Join(projectDir, l.Filename)); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !wanted[e.Name()] {
			if err := os.RemoveAll(filepath.Join(projectDir, e.Name())); err != nil {
				return err
			}
		}
	}

	return writeHTML(filepath.Join(projectDir, IndexFile), projectTemplate, p)
}

func (g *Generator) pruneProjects(keep map[string]bool) error {
	entries, err := os.ReadDir(g.SimpleDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(g.SimpleDir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove stale project %s: %w", e.Name(), err)
		}
	}
	return nil
}

var (
	rootTemplate = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
  <head><title>Simple index</title></head>
  <body>
{{- range .}}
    <a href="{{.Name}}/">{{.Name}}</a><br/>
{{- end}}
  </body>
</html>
`))
	projectTemplate = template.Must(template.New("project").Parse(`<!DOCTYPE html>
<html>
  <head><title>Links for {{.Name}}</title></head>
  <body>
    <h1>Links for {{.Name}}</h1>
{{- range .Links}}
    <a href="{{.Href}}#sha256={{.SHA256}}"{{if .RequiresPython}} data-requires-python="{{.RequiresPython}}"{{end}}>{{.Filename}}</a><br/>
{{- end}}
  </body>
</html>
`))
)

func writeHTML(path string, tmpl *template.Template, data any) error {
	return fsutil.AtomicWrite(path, fsutil.FileModeDefault, func(w io.Writer) error {
		return tmpl.Execute(w, data)
	})
}

func sha256File(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// ProjectNames lists the project directories currently in the index.
func ProjectNames(simpleDir string) ([]string, error) {
	entries, err := os.ReadDir(simpleDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
