package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PDFRenderer prints the themed HTML article to PDF through headless
// Chrome. Each call spins up its own Chrome context and tears it down
// before returning, so the renderer holds no resources between runs.
type PDFRenderer struct {
	Timeout time.Duration
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Timeout: 90 * time.Second}
}

func (r *PDFRenderer) Format() string {
	return "pdf"
}

func (r *PDFRenderer) Render(ctx context.Context, job Job) Result {
	res := Result{Format: "pdf", Path: job.OutPath}

	html, err := renderPage(job.Report, job.Title, job.Theme)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	tmp, err := os.CreateTemp("", "ferret-print-*.html")
	if err != nil {
		res.Error = fmt.Sprintf("failed to stage page: %v", err)
		return res
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(html); err != nil {
		tmp.Close()
		res.Error = fmt.Sprintf("failed to stage page: %v", err)
		return res
	}
	tmp.Close()

	pdf, err := r.print(ctx, "file://"+filepath.ToSlash(tmp.Name()))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := os.WriteFile(job.OutPath, pdf, 0644); err != nil {
		res.Error = fmt.Sprintf("failed to write pdf: %v", err)
		return res
	}

	res.Success = true
	return res
}

func (r *PDFRenderer) print(ctx context.Context, url string) ([]byte, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
	)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	printCtx, cancel := context.WithTimeout(browserCtx, r.Timeout)
	defer cancel()

	var pdf []byte
	err := chromedp.Run(printCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}
	return pdf, nil
}
