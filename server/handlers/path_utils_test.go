package handlers

import (
	"testing"
)

func TestParseFilePath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		isDir   bool
		invalid bool
	}{
		{"", "/", true, false},
		{"/", "/", true, false},
		{"normal/file.txt", "/normal/file.txt", false, false},
		{"docs/reports/", "/docs/reports", true, false},
		{"a//b", "/a/b", false, false},
		{"../etc/passwd", "/../etc/passwd", false, false},
		{"..\\..\\windows", "/", true, true},
		{"nul\x00byte", "/", true, true},
		{"line\nbreak", "/", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			info := ParseFilePath(tt.input)
			if info.IsInvalid != tt.invalid {
				t.Fatalf("IsInvalid = %v, want %v", info.IsInvalid, tt.invalid)
			}
			if info.FullPath != tt.want {
				t.Errorf("FullPath = %q, want %q", info.FullPath, tt.want)
			}
			if info.IsDirectory != tt.isDir {
				t.Errorf("IsDirectory = %v, want %v", info.IsDirectory, tt.isDir)
			}
		})
	}
}
