package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
)

const (
	defaultMaxDepth = 100
	maxAllowedDepth = 1000
)

// DirectoryListingResponse represents the response for directory listing operations
type DirectoryListingResponse struct {
	Path      string       `json:"path"`
	Type      string       `json:"type"` // "directory"
	Recursive bool         `json:"recursive"`
	MaxDepth  int          `json:"max_depth"`
	Count     int          `json:"count"`
	Items     []core.Entry `json:"items"`
}

// parseDepth reads ?depth=N and ?recursive=true. Recursive listings without
// an explicit depth use defaultMaxDepth.
func parseDepth(r *http.Request) (depth int, recursive bool, err error) {
	q := r.URL.Query()

	if raw := q.Get("recursive"); raw != "" {
		recursive, err = strconv.ParseBool(raw)
		if err != nil {
			return 0, false, fmt.Errorf("invalid recursive parameter %q", raw)
		}
	}

	depth = 1
	if recursive {
		depth = defaultMaxDepth
	}

	if raw := q.Get("depth"); raw != "" {
		depth, err = strconv.Atoi(raw)
		if err != nil || depth < 1 || depth > maxAllowedDepth {
			return 0, false, fmt.Errorf("depth must be between 1 and %d", maxAllowedDepth)
		}
		recursive = depth > 1
	}
	return depth, recursive, nil
}

// listDirectory writes the children of path, breadth first, as JSON
func listDirectory(ctx context.Context, w http.ResponseWriter, r *http.Request, engine *core.Engine, path string, logger *zap.Logger) {
	depth, recursive, err := parseDepth(r)
	if err != nil {
		SendErrorResponse(w, logger, &customError{message: err.Error()}, http.StatusBadRequest)
		return
	}

	exists, err := engine.DirectoryExists(ctx, path)
	if err != nil {
		SendErrorResponse(w, logger, err, http.StatusInternalServerError)
		return
	}
	if !exists {
		SendErrorResponse(w, logger, fmt.Errorf("directory %s: %w", log.SanitizePath(path), core.ErrObjectNotFound), http.StatusNotFound)
		return
	}

	items := []core.Entry{}
	for entry, err := range engine.EnumerateChildren(ctx, path, depth) {
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		items = append(items, entry)
	}

	w.Header().Set(TypeHeader, "directory")
	SendJSONResponse(w, http.StatusOK, DirectoryListingResponse{
		Path:      path,
		Type:      "directory",
		Recursive: recursive,
		MaxDepth:  depth,
		Count:     len(items),
		Items:     items,
	})

	metrics.FileOperationsTotal.WithLabelValues("http_list").Inc()
	logger.Debug("Directory listed",
		log.Path("path", path),
		zap.Int("depth", depth),
		zap.Int("count", len(items)))
}
