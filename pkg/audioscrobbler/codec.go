package audioscrobbler

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// tag identifies one field of a persisted track record.
type tag byte

const (
	tagArtist    tag = 'a'
	tagTitle     tag = 't'
	tagTimestamp tag = 'i'
	tagSource    tag = 'o'
	tagRating    tag = 'r'
	tagLength    tag = 'l'
	tagAlbum     tag = 'b'
	tagPosition  tag = 'n'
	tagMBID      tag = 'm'
)

// field describes how a tag maps onto a Track. Optional fields are only
// written when set.
type field struct {
	tag      tag
	optional bool
	get      func(Track) string
	set      func(*Track, string)
}

// fields lists every record field in the order it is written.
var fields = []field{
	{
		tag: tagArtist,
		get: func(t Track) string { return t.Artist },
		set: func(t *Track, v string) { t.Artist = v },
	},
	{
		tag: tagTitle,
		get: func(t Track) string { return t.Title },
		set: func(t *Track, v string) { t.Title = v },
	},
	{
		tag: tagTimestamp,
		get: func(t Track) string { return strconv.FormatInt(t.Timestamp, 10) },
		set: func(t *Track, v string) { t.Timestamp, _ = strconv.ParseInt(v, 10, 64) },
	},
	{
		tag: tagSource,
		get: func(t Track) string { return string(t.Source) },
		set: func(t *Track, v string) { t.Source = Source(firstChar(v)) },
	},
	{
		tag:      tagRating,
		optional: true,
		get:      func(t Track) string { return string(t.Rating) },
		set:      func(t *Track, v string) { t.Rating = Rating(firstChar(v)) },
	},
	{
		tag: tagLength,
		get: func(t Track) string { return strconv.Itoa(t.Length) },
		set: func(t *Track, v string) { t.Length, _ = strconv.Atoi(v) },
	},
	{
		tag:      tagAlbum,
		optional: true,
		get:      func(t Track) string { return t.Album },
		set:      func(t *Track, v string) { t.Album = v },
	},
	{
		tag:      tagPosition,
		optional: true,
		get: func(t Track) string {
			if t.Position == 0 {
				return ""
			}
			return strconv.Itoa(t.Position)
		},
		set: func(t *Track, v string) { t.Position, _ = strconv.Atoi(v) },
	},
	{
		tag:      tagMBID,
		optional: true,
		get:      func(t Track) string { return t.MBID },
		set:      func(t *Track, v string) { t.MBID = v },
	},
}

var fieldsByTag = func() map[tag]field {
	m := make(map[tag]field, len(fields))
	for _, f := range fields {
		m[f.tag] = f
	}
	return m
}()

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Encode writes tracks in the record format, one blank-line terminated
// record per track.
func Encode(w io.Writer, tracks []Track) error {
	bw := bufio.NewWriter(w)
	for _, t := range tracks {
		for _, f := range fields {
			v := flatten.Replace(f.get(t))
			if f.optional && v == "" {
				continue
			}
			if _, err := fmt.Fprintf(bw, "%c: %s\n", f.tag, v); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads records written by Encode. Records without an artist are
// dropped, as are lines that are not "k: value" pairs of a known tag.
func Decode(r io.Reader) ([]Track, error) {
	var (
		tracks  []Track
		current Track
		seen    bool
	)

	flush := func() {
		if seen && current.Valid() {
			tracks = append(tracks, current)
		}
		current = Track{}
		seen = false
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			flush()
			continue
		}

		if len(line) < 2 || line[1] != ':' {
			continue
		}
		f, ok := fieldsByTag[tag(line[0])]
		if !ok {
			continue
		}
		f.set(&current, strings.TrimPrefix(line[2:], " "))
		seen = true
	}
	if err := scanner.Err(); err != nil {
		return tracks, fmt.Errorf("failed to read track list: %w", err)
	}
	flush()

	return tracks, nil
}

func firstChar(s string) string {
	if s == "" {
		return ""
	}
	return s[:1]
}
