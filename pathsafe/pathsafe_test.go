package pathsafe

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Intro to Go", "Intro_to_Go"},
		{"../../etc/passwd.txt", ".._.._etc_passwd.txt"},
		{"a\x00b", "a_b"},
		{"Računarstvo", "Ra_unarstvo"},
		{"hw-1_final.v2", "hw-1_final.v2"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_IdempotentAndLengthPreserving(t *testing.T) {
	inputs := []string{
		"plain", "with space", "slash/inside", `back\slash`, "日本語", "tab\tnew\nline",
		"..", ".", "x\x00\x00y", "emoji 🎓 course", strings.Repeat("é", 40),
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
		if utf8.RuneCountInString(once) != utf8.RuneCountInString(in) {
			t.Errorf("Sanitize(%q) changed rune count: %q", in, once)
		}
		if in != "" && once == "" {
			t.Errorf("Sanitize(%q) returned empty string", in)
		}
		if strings.ContainsAny(once, `/\`) {
			t.Errorf("Sanitize(%q) kept a separator: %q", in, once)
		}
	}
}

func TestComponent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"..", "_."},
		{".", "_"},
		{"...", "__."},
		{"../x", "_._x"},
		{"../../etc/passwd.txt", "_.__._etc_passwd.txt"},
		{"notes.v2.txt", "notes.v2.txt"},
		{"Course", "Course"},
	}
	for _, tt := range tests {
		got := Component(tt.in)
		if got != tt.want {
			t.Errorf("Component(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if strings.Contains(got, "..") || strings.Contains(got, "/") {
			t.Errorf("Component(%q) = %q still unsafe", tt.in, got)
		}
		if again := Component(got); again != got {
			t.Errorf("Component not idempotent: %q -> %q", got, again)
		}
	}
}

func TestRelPath(t *testing.T) {
	// WHAT: Only whole ".." segments are traversal; dots inside a name are not.
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"course/hw/abc.txt", "course/hw/abc.txt", false},
		{"/course//hw/./abc.txt", "course/hw/abc.txt", false},
		{`course\hw\abc.txt`, "course/hw/abc.txt", false},
		{"course/hw/notes..v2.txt", "course/hw/notes..v2.txt", false},
		{"", "", false},
		{"../etc/passwd", "", true},
		{"course/../hw", "", true},
		{`course\..\..\outside`, "", true},
		{"course/hw/..", "", true},
	}
	for _, tt := range tests {
		got, err := RelPath(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("RelPath(%q) = %q, %v; want %q, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrPathTraversal) {
			t.Errorf("RelPath(%q) err = %v, want ErrPathTraversal", tt.in, err)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("scan-0190a1b2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "a/b", "a b", strings.Repeat("x", 300)} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader(strings.Repeat("x", 11)), 10); err == nil {
		t.Fatal("expected error when exceeding limit")
	}
}
