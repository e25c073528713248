package summarizer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/user/playcore/pkg/pipeline"
)

// MarkdownFormatter renders a Summary as a markdown document.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Playback Summary\n\n")
	fmt.Fprintf(&b, "Generated at %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Source\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Location | %s |\n", s.Source.Location)
	fmt.Fprintf(&b, "| Size | %s |\n", formatBytes(s.Source.Bytes))
	fmt.Fprintf(&b, "| Delivery | %s |\n", lo.Ternary(s.Source.Progressive, "progressive", "complete"))
	b.WriteString("\n")

	b.WriteString("## Media\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Container | %s |\n", s.Media.Format)
	duration := formatDuration(s.Media.Duration)
	if s.Media.DurationEstimated {
		duration += " (estimated)"
	}
	fmt.Fprintf(&b, "| Duration | %s |\n", duration)
	b.WriteString("\n")

	if len(s.Media.Tracks) > 0 {
		b.WriteString("| Track | Kind | Codec | Details |\n|---|---|---|---|\n")
		for _, t := range s.Media.Tracks {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", t.ID, t.Kind, t.Codec, trackDetails(t))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Playback\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Final state | %s |\n", s.Playback.FinalState)
	fmt.Fprintf(&b, "| Position | %s |\n", formatDuration(s.Playback.Position))
	fmt.Fprintf(&b, "| Pictures presented | %d |\n", s.Playback.Presented)
	fmt.Fprintf(&b, "| Late pictures | %d |\n", s.Playback.LateFrames)
	fmt.Fprintf(&b, "| Seeks | %d |\n", s.Playback.Seeks)
	fmt.Fprintf(&b, "| Duration corrections | %d |\n", s.Playback.DurationCorrections)
	if s.Playback.WallTime > 0 {
		fmt.Fprintf(&b, "| Wall time | %s |\n", formatDuration(s.Playback.WallTime))
	}
	b.WriteString("\n")

	b.WriteString("## Decode\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Strategy | %s |\n", lo.Ternary(s.Decode.Strategy == "", "-", s.Decode.Strategy))
	fmt.Fprintf(&b, "| Dropped samples | %d |\n", s.Decode.Dropped)
	codecs := lo.Keys(s.Decode.Backends)
	sort.Strings(codecs)
	for _, codec := range codecs {
		fmt.Fprintf(&b, "| Backend for %s | %s |\n", codec, s.Decode.Backends[codec])
	}

	return b.String()
}

func trackDetails(t pipeline.Track) string {
	if t.Kind == pipeline.KindVideo {
		return fmt.Sprintf("%dx%d", t.Width, t.Height)
	}
	return fmt.Sprintf("%d Hz, %d ch", t.SampleRate, t.Channels)
}

// formatDuration prints a duration as m:ss.mmm.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

func formatBytes(n int64) string {
	switch {
	case n < 0:
		return "unknown"
	case n >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
