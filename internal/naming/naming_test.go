package naming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Video Title", "My_Video_Title"},
		{`Video: "Test" <file>`, "Video_Test_file"},
		{`path/to\file`, "path_to_file"},
		{"file*name?test", "file_name_test"},
		{"Video   Title", "Video_Title"},
		{"Video _ _ Title", "Video_Title"},
		{"  Video Title  ", "Video_Title"},
		{" _ Video _ ", "Video"},
		{"Video\x00Title", "VideoTitle"},
		{"Video\nTitle", "VideoTitle"},
		{"Video | Title", "Video_Title"},
		{"日本語タイトル", "日本語タイトル"},
		{"Müsik Vïdëö", "Müsik_Vïdëö"},
		{"", "audio"},
		{"   ", "audio"},
		{"___", "audio"},
		{`\/:*?"<>|`, "audio"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_Truncates(t *testing.T) {
	got := Sanitize(strings.Repeat("ä", 300))
	if n := utf8.RuneCountInString(got); n != MaxStemLength {
		t.Errorf("len = %d, want %d", n, MaxStemLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated stem is not valid UTF-8")
	}

	got = Sanitize(strings.Repeat("a", 199) + " tail")
	if strings.HasSuffix(got, "_") {
		t.Errorf("Sanitize() = %q, want no trailing underscore", got)
	}
}

func TestSanitizeWithFallback(t *testing.T) {
	if got := SanitizeWithFallback("", "untitled"); got != "untitled" {
		t.Errorf("SanitizeWithFallback() = %q, want %q", got, "untitled")
	}
	if got := SanitizeWithFallback("???", "video"); got != "video" {
		t.Errorf("SanitizeWithFallback() = %q, want %q", got, "video")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.mp3")

	if got := ResolveConflict(path); got != path {
		t.Errorf("ResolveConflict() on free path = %q, want %q", got, path)
	}

	touch(t, path)
	if got, want := ResolveConflict(path), filepath.Join(dir, "test (1).mp3"); got != want {
		t.Errorf("ResolveConflict() = %q, want %q", got, want)
	}

	touch(t, filepath.Join(dir, "test (1).mp3"))
	touch(t, filepath.Join(dir, "test (2).mp3"))
	if got, want := ResolveConflict(path), filepath.Join(dir, "test (3).mp3"); got != want {
		t.Errorf("ResolveConflict() = %q, want %q", got, want)
	}
}

func TestResolveConflict_ExtensionMatters(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "song.mp3"))

	opus := filepath.Join(dir, "song.opus")
	if got := ResolveConflict(opus); got != opus {
		t.Errorf("ResolveConflict() = %q, want %q", got, opus)
	}

	touch(t, opus)
	if got := ResolveConflict(opus); filepath.Ext(got) != ".opus" {
		t.Errorf("ResolveConflict() = %q, want .opus extension", got)
	}
}
