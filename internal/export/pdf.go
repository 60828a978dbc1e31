package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"freilog/api/internal/daylog"
	"freilog/api/internal/freedays"
	"freilog/api/internal/timetable"
)

// DaySheet carries everything the printable day sheet renders.
type DaySheet struct {
	Date     string
	Entry    daylog.Entry
	Modules  []timetable.Module
	FreeDay  *freedays.Info
	Children []string
}

const daySheetSource = `<!DOCTYPE html>
<html lang="de">
<head>
<meta charset="utf-8">
<title>Freilog {{.Date}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; border-bottom: 2px solid #444; padding-bottom: 0.3em; }
h2 { font-size: 1.1em; margin-top: 1.2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #bbb; padding: 4px 8px; text-align: left; vertical-align: top; }
.free { color: #a33; font-weight: bold; }
.note { white-space: pre-wrap; }
</style>
</head>
<body>
<h1>Tagesprotokoll {{.Date}}</h1>
{{if .FreeDay}}<p class="free">{{.FreeDay.Label}}</p>{{end}}
<h2>Angebote</h2>
{{if .Modules}}
<table>
<tr><th>Modul</th><th>Zeit</th><th>Angebote</th></tr>
{{range .Modules}}
<tr><td>{{.PeriodLabel}}</td><td>{{.TimeLabel}}</td><td>{{join (index $.Entry.AngebotModules .ID) ", "}}</td></tr>
{{end}}
</table>
{{else}}
<p>{{join .Entry.Angebote ", "}}</p>
{{end}}
{{if .Entry.AngebotNotes}}<p class="note">{{.Entry.AngebotNotes}}</p>{{end}}
<h2>Beobachtungen</h2>
<table>
<tr><th>Kind</th><th>Beobachtungen</th><th>Notiz</th></tr>
{{range .Children}}
<tr>
<td>{{.}}{{if absent . $.Entry}} (abwesend){{end}}</td>
<td>{{join (index $.Entry.Observations .) ", "}}</td>
<td class="note">{{index $.Entry.ObservationNotes .}}</td>
</tr>
{{end}}
</table>
{{if .Entry.Notes}}<h2>Notizen</h2><p class="note">{{.Entry.Notes}}</p>{{end}}
</body>
</html>`

var daySheetTemplate = template.Must(template.New("daysheet").Funcs(template.FuncMap{
	"join": strings.Join,
	"absent": func(child string, entry daylog.Entry) bool {
		for _, name := range entry.AbsentChildIDs {
			if name == child {
				return true
			}
		}
		return false
	},
}).Parse(daySheetSource))

// RenderDaySheet produces the printable HTML for one day.
func RenderDaySheet(sheet DaySheet) (string, error) {
	var buf bytes.Buffer
	if err := daySheetTemplate.Execute(&buf, sheet); err != nil {
		return "", fmt.Errorf("render day sheet: %w", err)
	}
	return buf.String(), nil
}

// DayPDF renders the day sheet to PDF using headless Chromium.
func DayPDF(sheet DaySheet) (Result, error) {
	html, err := RenderDaySheet(sheet)
	if err != nil {
		return Result{}, err
	}
	data, err := printPDF(html)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:     data,
		Filename: fmt.Sprintf("freilog-%s.pdf", sheet.Date),
		MimeType: "application/pdf",
	}, nil
}

func printPDF(html string) ([]byte, error) {
	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithMarginTop(0.6).
				WithMarginBottom(0.6).
				WithMarginLeft(0.6).
				WithMarginRight(0.6).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}
	return pdfData, nil
}

// percentEncodeForDataURL encodes for a data URL: spaces become %20, not +.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}
