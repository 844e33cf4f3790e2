package handlers

import (
	"strings"

	"github.com/ebogdum/bucketfs/internal/pathutil"
)

// PathInfo represents parsed path information
type PathInfo struct {
	FullPath    string // Rooted path without a trailing slash, "/" for the root
	IsDirectory bool   // True if the URL path ends with "/"
	IsInvalid   bool   // True when the path failed validation and should be rejected
}

// ParseFilePath extracts path information from the wildcard part of a route.
//   - /v1/files/some/dir/file  -> "/some/dir/file" (file)
//   - /v1/files/some/dir/      -> "/some/dir" (directory)
//   - /v1/files/               -> "/" (directory)
func ParseFilePath(urlPath string) PathInfo {
	if err := pathutil.ValidatePath(urlPath); err != nil {
		return PathInfo{FullPath: "/", IsDirectory: true, IsInvalid: true}
	}

	isDirectory := urlPath == "" || strings.HasSuffix(urlPath, "/")

	fullPath := pathutil.Join("/", urlPath)
	if fullPath == "/" {
		isDirectory = true
	}

	return PathInfo{
		FullPath:    fullPath,
		IsDirectory: isDirectory,
	}
}
