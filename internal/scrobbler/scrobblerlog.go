package scrobbler

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

// Header lines of a portable player log. Times are written as recorded, so
// the timezone is left to the importing program.
const scrobblerLogHeader = "#AUDIOSCROBBLER/1.1\n#TZ/UNKNOWN\n"

// WriteScrobblerLog writes tracks in the .scrobbler.log format understood by
// offline scrobbling tools. Every track is marked as listened.
func WriteScrobblerLog(w io.Writer, client string, tracks []audioscrobbler.Track) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s#CLIENT/%s\n", scrobblerLogHeader, logField(client)); err != nil {
		return err
	}

	for _, t := range tracks {
		if !t.Valid() {
			continue
		}
		position := ""
		if t.Position > 0 {
			position = strconv.Itoa(t.Position)
		}
		fields := []string{
			logField(t.Artist),
			logField(t.Album),
			logField(t.Title),
			position,
			strconv.Itoa(t.Length),
			"L",
			strconv.FormatInt(t.Timestamp, 10),
			logField(t.MBID),
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// logField strips the separators of the log format from a value
func logField(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", "").Replace(s)
}
