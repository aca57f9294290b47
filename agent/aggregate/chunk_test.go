package aggregate

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkReassembles(t *testing.T) {
	t.Parallel()

	text := "Here is what I found:\n- get_weather: sunny in 東京, 25°C\n- search_accommodation: 3 listings"
	for _, size := range []int{1, 5, 16, 40, 1000} {
		chunks := Chunk(text, size)
		if got := strings.Join(chunks, ""); got != text {
			t.Fatalf("size %d: joined = %q, want %q", size, got, text)
		}
		for _, c := range chunks {
			if n := utf8.RuneCountInString(c); n > size || n == 0 {
				t.Fatalf("size %d: chunk %q has %d runes", size, c, n)
			}
		}
	}
}

func TestChunkPrefersWhitespace(t *testing.T) {
	t.Parallel()

	chunks := Chunk("hello brave new world", 8)
	want := []string{"hello ", "brave ", "new ", "world"}
	if len(chunks) != len(want) {
		t.Fatalf("Chunk() = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("Chunk() = %q, want %q", chunks, want)
		}
	}
}

func TestChunkEdgeCases(t *testing.T) {
	t.Parallel()

	if Chunk("", 4) != nil {
		t.Fatal("Chunk(\"\") != nil")
	}
	if got := Chunk("abc", 0); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("Chunk(size 0) = %q", got)
	}
}
