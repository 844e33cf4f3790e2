package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func objects(keys ...string) []ObjectInfo {
	out := make([]ObjectInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, ObjectInfo{Key: k})
	}
	return out
}

func keysOf(page ListPage) []string {
	out := make([]string, 0, len(page.Objects))
	for _, o := range page.Objects {
		out = append(out, o.Key)
	}
	return out
}

func TestPaginateDelimiter(t *testing.T) {
	store := objects("a/", "a/x", "a/y/", "a/y/z", "a/w/q", "b")

	page := Paginate(store, ListInput{Prefix: "a/", Delimiter: "/"})

	assert.Equal(t, []string{"a/", "a/x"}, keysOf(page))
	assert.Equal(t, []string{"a/w/", "a/y/"}, page.CommonPrefixes)
	assert.Empty(t, page.NextPageToken)
}

func TestPaginateFlat(t *testing.T) {
	store := objects("a/", "a/x", "a/y/z", "b")

	page := Paginate(store, ListInput{Prefix: "a/"})

	assert.Equal(t, []string{"a/", "a/x", "a/y/z"}, keysOf(page))
	assert.Empty(t, page.CommonPrefixes)
}

func TestPaginatePages(t *testing.T) {
	store := objects("p/1", "p/2", "p/3/a", "p/3/b", "p/4")

	var keys, prefixes []string
	token := ""
	pages := 0
	for {
		page := Paginate(store, ListInput{Prefix: "p/", Delimiter: "/", PageToken: token, MaxKeys: 2})
		keys = append(keys, keysOf(page)...)
		prefixes = append(prefixes, page.CommonPrefixes...)
		pages++
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	assert.Equal(t, []string{"p/1", "p/2", "p/4"}, keys)
	assert.Equal(t, []string{"p/3/"}, prefixes)
	assert.Equal(t, 2, pages)
}

func TestPaginateEmpty(t *testing.T) {
	page := Paginate(nil, ListInput{Prefix: "missing/", Delimiter: "/"})

	assert.Empty(t, page.Objects)
	assert.Empty(t, page.CommonPrefixes)
	assert.Empty(t, page.NextPageToken)
}
