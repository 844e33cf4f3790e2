package pathutil

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    Key
		shouldError bool
	}{
		{
			name:     "empty path",
			input:    "",
			expected: RootKey,
		},
		{
			name:     "root path",
			input:    "/",
			expected: RootKey,
		},
		{
			name:     "simple path",
			input:    "file.txt",
			expected: "file.txt",
		},
		{
			name:     "nested rooted path",
			input:    "/dir/subdir/file.txt",
			expected: "dir/subdir/file.txt",
		},
		{
			name:     "multiple slashes",
			input:    "dir//file.txt",
			expected: "dir/file.txt",
		},
		{
			name:     "trailing slash",
			input:    "dir/",
			expected: "dir",
		},
		{
			name:     "dot segments kept verbatim",
			input:    "/dir/../file.txt",
			expected: "dir/../file.txt",
		},
		{
			name:     "current directory kept verbatim",
			input:    "./file.txt",
			expected: "./file.txt",
		},
		{
			name:        "backslash separator",
			input:       "dir\\file.txt",
			shouldError: true,
		},
		{
			name:        "null byte",
			input:       "file\x00.txt",
			shouldError: true,
		},
		{
			name:        "control character",
			input:       "file\x01.txt",
			shouldError: true,
		},
	}

	var n Normalizer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := n.Normalize(tt.input)

			if tt.shouldError {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("expected ErrInvalidPath for input %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("for input %q, expected %q, got %q", tt.input, tt.expected, result)
			}
		})
	}
}

func TestDirectoryPrefix(t *testing.T) {
	tests := []struct {
		input    string
		expected Key
	}{
		{input: "/", expected: RootKey},
		{input: "", expected: RootKey},
		{input: "/a", expected: "a/"},
		{input: "/a/b/", expected: "a/b/"},
		{input: "a//b", expected: "a/b/"},
	}

	var n Normalizer
	for _, tt := range tests {
		result, err := n.DirectoryPrefix(tt.input)
		if err != nil {
			t.Fatalf("unexpected error for input %q: %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("for input %q, expected %q, got %q", tt.input, tt.expected, result)
		}
		if !result.IsPrefix() {
			t.Errorf("prefix %q should report IsPrefix", result)
		}
	}
}

func TestNormalizeCaseInsensitive(t *testing.T) {
	n := NewNormalizer(true)
	if n.CaseSensitive() {
		t.Fatal("case-insensitive normalizer reports case sensitivity")
	}

	key, err := n.Normalize("/Data/Report.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "data/report.txt" {
		t.Errorf("expected folded key, got %q", key)
	}

	if !NewNormalizer(false).CaseSensitive() {
		t.Error("default normalizer should be case-sensitive")
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		expected string
	}{
		{name: "no segments", segments: nil, expected: ""},
		{name: "rooted", segments: []string{"/a", "b", "c.txt"}, expected: "/a/b/c.txt"},
		{name: "relative", segments: []string{"a", "b"}, expected: "a/b"},
		{name: "empty segments collapse", segments: []string{"", "/a/", "", "b//c"}, expected: "/a/b/c"},
		{name: "only root", segments: []string{"/"}, expected: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Join(tt.segments...); got != tt.expected {
				t.Errorf("Join(%q) = %q, want %q", tt.segments, got, tt.expected)
			}
		})
	}
}

func TestParentAndLeaf(t *testing.T) {
	tests := []struct {
		input  string
		parent string
		leaf   string
	}{
		{input: "/a/b/c.txt", parent: "/a/b", leaf: "c.txt"},
		{input: "/a/b/", parent: "/a", leaf: "b"},
		{input: "/a", parent: "/", leaf: "a"},
		{input: "/", parent: "/", leaf: ""},
		{input: "a", parent: "", leaf: "a"},
		{input: "a/b", parent: "a", leaf: "b"},
		{input: "/a//b", parent: "/a", leaf: "b"},
	}

	for _, tt := range tests {
		if got := ParentOf(tt.input); got != tt.parent {
			t.Errorf("ParentOf(%q) = %q, want %q", tt.input, got, tt.parent)
		}
		if got := LeafName(tt.input); got != tt.leaf {
			t.Errorf("LeafName(%q) = %q, want %q", tt.input, got, tt.leaf)
		}
	}
}

func TestIsRooted(t *testing.T) {
	if !IsRooted("/a") {
		t.Error("expected /a to be rooted")
	}
	if IsRooted("a/b") {
		t.Error("expected a/b to be relative")
	}
}
