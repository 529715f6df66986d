package services

import (
	"fmt"
	"strings"

	"clipforge/utils"
)

// Canvas dimensions for the vertical-video subtitle layout.
const (
	playResX = 1080
	playResY = 1920
)

// maxCaptionLineRunes is where long caption lines get soft-wrapped so they
// stay readable on a portrait canvas.
const maxCaptionLineRunes = 42

// StyleConfig holds the subtitle style options. Defaults match the
// mobile-portrait vertical-video convention.
type StyleConfig struct {
	FontFamily      string
	FontSize        int
	PrimaryColor    string
	BackgroundColor string
	Bold            bool
	Alignment       int
	MarginL         int
	MarginR         int
	MarginV         int
}

// DefaultStyle returns the standard bottom-centered portrait style.
func DefaultStyle() StyleConfig {
	return StyleConfig{
		FontFamily:      "Arial",
		FontSize:        48,
		PrimaryColor:    "&H00FFFFFF",
		BackgroundColor: "&H80000000",
		Bold:            true,
		Alignment:       2,
		MarginL:         30,
		MarginR:         30,
		MarginV:         80,
	}
}

// SubtitleService builds styled ASS caption tracks.
type SubtitleService struct {
	style StyleConfig
}

// NewSubtitleService creates a subtitle service with the given style.
func NewSubtitleService(style StyleConfig) *SubtitleService {
	return &SubtitleService{style: style}
}

// Build produces a complete ASS document with a single dialogue event
// spanning from time zero to duration, carrying the caption verbatim apart
// from newline and line-length normalization.
func (ss *SubtitleService) Build(caption string, duration float64) string {
	bold := 0
	if ss.style.Bold {
		bold = -1
	}

	end := utils.FormatASSTimestamp(duration)
	text := sanitizeCaption(caption)

	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", playResX)
	fmt.Fprintf(&b, "PlayResY: %d\n", playResY)
	b.WriteString("\n[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, BackColour, Bold, Italic, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,%s,%d,0,1,2,0,%d,%d,%d,%d,1\n",
		ss.style.FontFamily, ss.style.FontSize, ss.style.PrimaryColor, ss.style.BackgroundColor,
		bold, ss.style.Alignment, ss.style.MarginL, ss.style.MarginR, ss.style.MarginV)
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	fmt.Fprintf(&b, "Dialogue: 0,0:00:00.00,%s,Default,,0,0,0,,%s\n", end, text)

	return b.String()
}

// sanitizeCaption turns raw caption text into a single ASS event payload:
// newlines become \N, and long lines are soft-wrapped at word boundaries.
func sanitizeCaption(caption string) string {
	caption = strings.ReplaceAll(caption, "\r\n", "\n")
	caption = strings.ReplaceAll(caption, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(caption, "\n") {
		lines = append(lines, wrapLine(strings.TrimSpace(line))...)
	}

	return strings.Join(lines, `\N`)
}

// wrapLine splits a line into chunks of at most maxCaptionLineRunes runes,
// breaking at spaces. Words longer than the limit stay whole.
func wrapLine(line string) []string {
	if len([]rune(line)) <= maxCaptionLineRunes {
		return []string{line}
	}

	var out []string
	var current strings.Builder
	currentLen := 0

	for _, word := range strings.Fields(line) {
		wordLen := len([]rune(word))
		if currentLen > 0 && currentLen+1+wordLen > maxCaptionLineRunes {
			out = append(out, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}
	if currentLen > 0 {
		out = append(out, current.String())
	}

	return out
}
