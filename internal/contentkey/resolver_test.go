package contentkey

import "testing"

func TestYouTubeResolver_URLForms(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		wantID    string
		wantOK    bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch url extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short link with query", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", true},
		{"shorts", "https://www.youtube.com/shorts/abc123def45", "abc123def45", true},
		{"mobile host", "https://m.youtube.com/watch?v=abc123def45", "abc123def45", true},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"bare id with underscore", "ab_cd-ef", "ab_cd-ef", true},
		{"unrelated url", "https://example.com/watch?v=dQw4w9WgXcQ", "", false},
		{"youtube homepage", "https://www.youtube.com/", "", false},
		{"shorts without id", "https://www.youtube.com/shorts/", "", false},
		{"too short for bare id", "abc", "", false},
		{"empty", "", "", false},
		{"garbage", "not a url at all!!", "", false},
	}

	r := YouTubeResolver{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := r.Resolve(tc.candidate)
			if ok != tc.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tc.candidate, ok, tc.wantOK)
			}
			if id != tc.wantID {
				t.Errorf("Resolve(%q) = %q, want %q", tc.candidate, id, tc.wantID)
			}
		})
	}
}

func TestRegistry_QualifiesKeys(t *testing.T) {
	reg := DefaultRegistry()

	key, ok := reg.Resolve("youtube", "https://youtu.be/dQw4w9WgXcQ")
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if key != "youtube:dQw4w9WgXcQ" {
		t.Errorf("Expected key 'youtube:dQw4w9WgXcQ', got %q", key)
	}
}

func TestRegistry_UnknownSource(t *testing.T) {
	reg := DefaultRegistry()

	if _, ok := reg.Resolve("vimeo", "https://vimeo.com/12345678"); ok {
		t.Error("expected unknown source to resolve nothing")
	}
	if reg.Supported("vimeo") {
		t.Error("vimeo should not be a supported source")
	}
	if !reg.Supported("youtube") {
		t.Error("youtube should be a supported source")
	}
}
