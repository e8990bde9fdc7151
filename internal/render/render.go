// Package render fans the finished report out to presentation formats.
// Renderer failures are recorded per format and never abort the run.
package render

import (
	"context"
	"strings"
)

// Job is one rendering request.
type Job struct {
	Report  string
	Title   string
	OutPath string
	Theme   string
}

// Result reports one renderer's outcome. Slides is only meaningful for
// the slides format.
type Result struct {
	Format  string `json:"format"`
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Error   string `json:"error,omitempty"`
	Slides  int    `json:"slides,omitempty"`
}

// Renderer produces one output format from the report markdown.
type Renderer interface {
	Format() string
	Render(ctx context.Context, job Job) Result
}

// SplitSlides cuts a markdown report into slide chunks at every
// second-level heading. Content before the first "## " becomes the
// title slide.
func SplitSlides(report string) []string {
	var slides []string
	var current []string

	for _, line := range strings.Split(report, "\n") {
		if strings.HasPrefix(line, "## ") {
			if len(current) > 0 {
				slides = append(slides, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		slides = append(slides, strings.Join(current, "\n"))
	}
	return slides
}

// themeCSS returns the base stylesheet for a theme name. Unknown names
// fall back to the default theme.
func themeCSS(theme string) string {
	switch theme {
	case "dark":
		return `body { font-family: -apple-system, 'Segoe UI', sans-serif; background: #1a1a2e; color: #eaeaea; line-height: 1.7; }
a { color: #7fdbff; }
pre, code { background: #16213e; color: #e0e0e0; border-radius: 4px; }
table { border-collapse: collapse; } th, td { border: 1px solid #444; padding: 8px; }`
	case "minimal":
		return `body { font-family: Georgia, serif; background: #ffffff; color: #222; line-height: 1.8; }
a { color: #222; }
pre, code { background: #f5f5f5; border-radius: 2px; }
table { border-collapse: collapse; } th, td { border: 1px solid #ddd; padding: 8px; }`
	default:
		return `body { font-family: -apple-system, 'Segoe UI', sans-serif; background: #fafafa; color: #2d3436; line-height: 1.7; }
a { color: #0984e3; }
pre, code { background: #eef1f5; border-radius: 4px; }
table { border-collapse: collapse; } th, td { border: 1px solid #ccc; padding: 8px; }`
	}
}
