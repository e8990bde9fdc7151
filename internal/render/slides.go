package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var slideMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var deckTemplate = template.Must(template.New("deck").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
{{.CSS}}
.slide { min-height: 100vh; box-sizing: border-box; padding: 4rem 6rem; display: flex; flex-direction: column; justify-content: center; page-break-after: always; }
.slide h2 { font-size: 2.2rem; }
.slide-number { position: absolute; right: 1.5rem; bottom: 1rem; opacity: 0.5; font-size: 0.9rem; }
</style>
</head>
<body>
{{range $i, $s := .Slides}}<section class="slide">
{{$s}}
<div class="slide-number">{{inc $i}}</div>
</section>
{{end}}</body>
</html>
`))

// SlidesRenderer cuts the report at its second-level headings and lays
// each chunk out as one full-screen slide.
type SlidesRenderer struct{}

func (SlidesRenderer) Format() string {
	return "slides"
}

func (SlidesRenderer) Render(ctx context.Context, job Job) Result {
	res := Result{Format: "slides", Path: job.OutPath}

	chunks := SplitSlides(job.Report)
	slides := make([]template.HTML, 0, len(chunks))
	for _, chunk := range chunks {
		var body bytes.Buffer
		if err := slideMarkdown.Convert([]byte(chunk), &body); err != nil {
			res.Error = fmt.Sprintf("failed to convert slide: %v", err)
			return res
		}
		slides = append(slides, template.HTML(body.String()))
	}

	var deck bytes.Buffer
	err := deckTemplate.Execute(&deck, map[string]any{
		"Title":  job.Title,
		"CSS":    template.CSS(themeCSS(job.Theme)),
		"Slides": slides,
	})
	if err != nil {
		res.Error = fmt.Sprintf("failed to render deck: %v", err)
		return res
	}

	if err := os.WriteFile(job.OutPath, deck.Bytes(), 0644); err != nil {
		res.Error = fmt.Sprintf("failed to write deck: %v", err)
		return res
	}

	res.Success = true
	res.Slides = len(slides)
	return res
}
