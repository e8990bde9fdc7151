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

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
{{.CSS}}
article { max-width: 760px; margin: 0 auto; padding: 2rem 1rem; }
</style>
</head>
<body>
<article>
{{.Body}}
</article>
</body>
</html>
`))

// WebRenderer turns the report into a standalone HTML article.
type WebRenderer struct{}

func (WebRenderer) Format() string {
	return "web"
}

func (WebRenderer) Render(ctx context.Context, job Job) Result {
	res := Result{Format: "web", Path: job.OutPath}

	page, err := renderPage(job.Report, job.Title, job.Theme)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := os.WriteFile(job.OutPath, page, 0644); err != nil {
		res.Error = fmt.Sprintf("failed to write page: %v", err)
		return res
	}

	res.Success = true
	return res
}

// renderPage converts markdown into the themed article shell.
func renderPage(report, title, theme string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(report), &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, map[string]any{
		"Title": title,
		"CSS":   template.CSS(themeCSS(theme)),
		"Body":  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return page.Bytes(), nil
}
