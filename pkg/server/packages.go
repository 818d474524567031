package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
)

// UploadField is the multipart field holding the artifact.
const UploadField = "file"

const multipartMemory = 32 << 20

// ReindexResponse is returned by a successful reindex.
type ReindexResponse struct {
	Message string `json:"message"`
}

// DeleteResponse is returned by a successful delete.
type DeleteResponse struct {
	Message string   `json:"message"`
	Removed []string `json:"removed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("missing %q field", UploadField))
		return
	}
	defer func() { _ = file.Close() }()

	filename := uploadFilename(header.Filename)
	if filename == "" {
		writeDetail(w, http.StatusBadRequest, "upload has no filename")
		return
	}

	tmpPath, cleanup, err := saveUpload(file, filename)
	if err != nil {
		requestLog(r.Context()).Error("Failed to save upload", logger.Fields{"error": err.Error()})
		writeDetail(w, http.StatusInternalServerError, "Failed to save file")
		return
	}
	defer cleanup()

	if _, err := s.deps.Packages.Upload(r.Context(), tmpPath, filename); err != nil {
		writeError(w, r, "Failed to upload package: ", err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: fmt.Sprintf("Package %s uploaded and indexed!", filename)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	res, err := s.deps.Packages.Delete(r.Context(), name)
	if err != nil {
		writeError(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{
		Message: fmt.Sprintf("Package %s deleted!", name),
		Removed: res.Removed,
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Packages.Reindex(r.Context()); err != nil {
		writeError(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, ReindexResponse{Message: "Index rebuilt"})
}

// handleList serves GET /packages, filtered by the optional search query.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("search") {
		s.search(w, r, q.Get("search"))
		return
	}
	names, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		writeError(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// handleSearch serves GET /packages/search?package_name=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("package_name") {
		writeDetail(w, http.StatusBadRequest, `missing "package_name" query parameter`)
		return
	}
	s.search(w, r, q.Get("package_name"))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, needle string) {
	names, err := s.deps.Catalog.Search(r.Context(), needle)
	if err != nil {
		writeError(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// uploadFilename strips any client supplied directories.
func uploadFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "/", "..":
		return ""
	}
	return name
}

// saveUpload copies src to a private temporary directory under filename.
func saveUpload(src io.Reader, filename string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "wheelhouse-upload-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, filename)
	dst, err := fsutil.CreateFilePerm(path, fsutil.FileModeDefault)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		cleanup()
		return "", nil, err
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
