package server

import (
	"encoding/json"
	"net/http"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// MessageResponse is returned by successful mutations.
type MessageResponse struct {
	Message string `json:"message"`
}

// DependencyResponse is returned when an upload is refused for missing
// dependencies.
type DependencyResponse struct {
	Message             string   `json:"message"`
	MissingDependencies []string `json:"missing_dependencies"`
}

// ErrorResponse is returned by every other failure.
type ErrorResponse struct {
	Detail     string `json:"detail"`
	Kind       string `json:"kind,omitempty"`
	IndexStale bool   `json:"index_stale,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", logger.Fields{"error": err.Error()})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// writeError maps a synchronizer failure to its HTTP response. prefix is
// prepended to the detail of store failures.
func writeError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	kind := errutils.KindOf(err)
	fields := logger.Fields{"error": err.Error(), "kind": string(kind)}
	log := requestLog(r.Context())

	switch kind {
	case errutils.KindDependencyUnsatisfied:
		e, _ := errutils.AsError(err)
		missing := e.Missing
		if missing == nil {
			missing = []string{}
		}
		log.Info("Upload refused", fields)
		writeJSON(w, http.StatusBadRequest, DependencyResponse{
			Message:             "Dependencies not satisfied",
			MissingDependencies: missing,
		})
	case errutils.KindInvalidArtifact, errutils.KindMetadataUnreadable:
		log.Info("Request rejected", fields)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: err.Error(), Kind: string(kind)})
	case errutils.KindIndexRebuild:
		log.Error("Index is stale", fields)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Detail:     prefix + err.Error(),
			Kind:       string(kind),
			IndexStale: true,
		})
	case errutils.KindTransport:
		log.Error("Store operation failed", fields)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: prefix + err.Error(), Kind: string(kind)})
	default:
		log.Error("Request failed", fields)
		writeDetail(w, http.StatusInternalServerError, prefix+err.Error())
	}
}
