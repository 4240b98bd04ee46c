package compose

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrNoCues is returned when subtitle generation has no cues to write.
var ErrNoCues = errors.New("compose: no subtitle cues")

// Cue is a single subtitle entry.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// BuildCues lays subtitle texts end to end along the video timeline,
// one cue per slide, using the duration of each slide's segment. Texts
// and durations are index-aligned; an empty text produces no cue but
// still advances the timeline.
func BuildCues(texts []string, durations []float64) []Cue {
	cues := make([]Cue, 0, len(texts))
	var offset time.Duration
	for i, text := range texts {
		var d time.Duration
		if i < len(durations) {
			d = time.Duration(durations[i] * float64(time.Second))
		}
		if strings.TrimSpace(text) != "" {
			cues = append(cues, Cue{
				Start: offset,
				End:   offset + d,
				Text:  strings.TrimSpace(text),
			})
		}
		offset += d
	}
	return cues
}

// WriteSRT writes cues to path in SubRip format.
func WriteSRT(path string, cues []Cue) error {
	if len(cues) == 0 {
		return ErrNoCues
	}

	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(cue.Start), srtTimestamp(cue.End), cue.Text)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("compose: write subtitle file: %w", err)
	}
	return nil
}

// srtTimestamp formats a duration as HH:MM:SS,mmm.
func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
