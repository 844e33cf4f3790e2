package s3

import (
	"mime"
	"path"
	"strings"
)

// directoryContentType marks zero-length directory marker objects.
const directoryContentType = "application/x-directory"

// getContentType returns the MIME type based on the key's extension
func getContentType(key string) string {
	if strings.HasSuffix(key, "/") {
		return directoryContentType
	}

	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case "":
		return "application/octet-stream"
	}

	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}
