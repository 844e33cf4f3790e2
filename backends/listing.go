package backends

import (
	"sort"
	"strings"
)

// DefaultPageSize is the page size used when ListInput.MaxKeys is not set.
const DefaultPageSize = 1000

// Paginate applies S3 listing semantics (prefix, delimiter grouping, page
// tokens) to an in-memory set of objects. It is shared by the backends that do
// not have a native listing API. The page token is the last key or common
// prefix returned.
func Paginate(objects []ObjectInfo, in ListInput) ListPage {
	sorted := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, in.Prefix) {
			sorted = append(sorted, obj)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	maxKeys := in.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultPageSize
	}

	// A token ending in the delimiter is a common prefix already returned;
	// every key below it was rolled up into that entry.
	skipPrefix := ""
	if in.Delimiter != "" && strings.HasSuffix(in.PageToken, in.Delimiter) {
		skipPrefix = in.PageToken
	}

	var page ListPage
	count := 0
	last := ""
	for _, obj := range sorted {
		if in.PageToken != "" && obj.Key <= in.PageToken {
			continue
		}
		if skipPrefix != "" && strings.HasPrefix(obj.Key, skipPrefix) {
			continue
		}

		entry := obj.Key
		isPrefix := false
		if in.Delimiter != "" {
			rest := obj.Key[len(in.Prefix):]
			if idx := strings.Index(rest, in.Delimiter); idx >= 0 {
				entry = in.Prefix + rest[:idx+len(in.Delimiter)]
				isPrefix = true
			}
		}

		if isPrefix && entry == last {
			continue
		}

		if count == maxKeys {
			page.NextPageToken = last
			break
		}

		if isPrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, entry)
		} else {
			page.Objects = append(page.Objects, obj)
		}
		last = entry
		count++
	}

	return page
}
