package audioscrobbler

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleTracks() []Track {
	return []Track{
		{
			Artist:    "The Beatles",
			Title:     "Yesterday",
			Album:     "Help!",
			Timestamp: 1700000000,
			Source:    SourceUser,
			Length:    125,
			Position:  13,
			MBID:      "2a1ea2b9-1e8e-4a3d-8a3b-12a7b1a2b3c4",
		},
		{
			Artist:    "Cher",
			Title:     "Believe",
			Timestamp: 1700000300,
			Source:    SourceUser,
			Rating:    RatingLove,
			Length:    239,
		},
		{
			Artist:    "Simon & Garfunkel",
			Title:     "",
			Timestamp: 1700000600,
			Length:    0,
		},
	}
}

func TestEncode_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleTracks()[:2]); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := "a: The Beatles\nt: Yesterday\ni: 1700000000\no: P\nl: 125\nb: Help!\nn: 13\nm: 2a1ea2b9-1e8e-4a3d-8a3b-12a7b1a2b3c4\n\n" +
		"a: Cher\nt: Believe\ni: 1700000300\no: P\nr: L\nl: 239\n\n"
	if got := buf.String(); got != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Track
	}{
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "single record",
			input: "a: Cher\nt: Believe\ni: 10\no: P\nl: 200\n\n",
			want:  []Track{{Artist: "Cher", Title: "Believe", Timestamp: 10, Source: SourceUser, Length: 200}},
		},
		{
			name:  "record without artist is dropped",
			input: "t: Orphan\ni: 10\nl: 200\n\na: Cher\nt: Believe\ni: 11\nl: 200\n\n",
			want:  []Track{{Artist: "Cher", Title: "Believe", Timestamp: 11, Length: 200}},
		},
		{
			name:  "unterminated trailing record is kept",
			input: "a: Cher\nt: Believe\ni: 10\nl: 200\n",
			want:  []Track{{Artist: "Cher", Title: "Believe", Timestamp: 10, Length: 200}},
		},
		{
			name:  "malformed lines are ignored",
			input: "a: Cher\ngarbage\nz: unknown\nt: Believe\ni: notanumber\n\n",
			want:  []Track{{Artist: "Cher", Title: "Believe"}},
		},
		{
			name:  "repeated blank lines",
			input: "\n\na: Cher\n\n\n\n",
			want:  []Track{{Artist: "Cher"}},
		},
		{
			name:  "crlf line endings",
			input: "a: Cher\r\nt: Believe\r\n\r\n",
			want:  []Track{{Artist: "Cher", Title: "Believe"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastfm")
	tracks := sampleTracks()

	if err := Store(path, tracks); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, tracks) {
		t.Errorf("Load() = %+v, want %+v", got, tracks)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestStoreLoad_DropsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "librefm")
	tracks := []Track{
		{Artist: "", Title: "No Artist", Length: 100},
		{Artist: "Cher", Title: "Believe", Length: 200},
	}

	if err := Store(path, tracks); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].Artist != "Cher" {
		t.Errorf("Load() = %+v, want only Cher", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() = %+v, want empty", got)
	}
}

func TestEncode_FlattensNewlines(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, []Track{{Artist: "Line\nBreak", Title: "a\r\nb"}}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 1 || got[0].Artist != "Line Break" || got[0].Title != "a b" {
		t.Errorf("Decode() = %+v", got)
	}
}
