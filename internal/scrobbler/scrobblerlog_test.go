package scrobbler

import (
	"bytes"
	"testing"

	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

func TestWriteScrobblerLog(t *testing.T) {
	tracks := []audioscrobbler.Track{
		{
			Artist:    "Metallica",
			Album:     "Metallica",
			Title:     "Enter Sandman",
			Position:  1,
			Length:    365,
			Timestamp: 1143374412,
			MBID:      "62c2e20a-559e-422f-a44c-9afa7882f0c4",
		},
		{
			Artist:    "Portishead",
			Title:     "Cowboys\tLive",
			Length:    312,
			Timestamp: 1143374777,
		},
		{Title: "No artist", Length: 200, Timestamp: 1},
	}

	var buf bytes.Buffer
	if err := WriteScrobblerLog(&buf, "scrobbler 1.0", tracks); err != nil {
		t.Fatalf("WriteScrobblerLog: %v", err)
	}

	want := "#AUDIOSCROBBLER/1.1\n" +
		"#TZ/UNKNOWN\n" +
		"#CLIENT/scrobbler 1.0\n" +
		"Metallica\tMetallica\tEnter Sandman\t1\t365\tL\t1143374412\t62c2e20a-559e-422f-a44c-9afa7882f0c4\n" +
		"Portishead\t\tCowboys Live\t\t312\tL\t1143374777\t\n"

	if got := buf.String(); got != want {
		t.Errorf("unexpected log:\n got: %q\nwant: %q", got, want)
	}
}

func TestWriteScrobblerLogEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteScrobblerLog(&buf, "scrobbler", nil); err != nil {
		t.Fatalf("WriteScrobblerLog: %v", err)
	}

	want := "#AUDIOSCROBBLER/1.1\n#TZ/UNKNOWN\n#CLIENT/scrobbler\n"
	if got := buf.String(); got != want {
		t.Errorf("expected header only, got %q", got)
	}
}
