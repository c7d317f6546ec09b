package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/alsepgate/internal/rules"
	"example.com/alsepgate/internal/summary"
)

// PDFOptions controls the acceptance PDF layout.
type PDFOptions struct {
	Lang Language
	// TapeSHA256 is printed in the summary and encoded as a QR code.
	TapeSHA256 string
	Summary    *summary.Summary
	// FontPath names a UTF-8 TrueType font. Languages outside Latin-1 need one.
	FontPath string
}

const bodyFont = "body"

type pdfDoc struct {
	*gofpdf.Fpdf
	tr     Translator
	family string
	enc    func(string) string
}

func (d *pdfDoc) font(style string, size float64) {
	d.SetFont(d.family, style, size)
}

// SaveAcceptancePDF renders the given acceptance report into a PDF document.
func SaveAcceptancePDF(rep rules.AcceptanceReport, out string, opts PDFOptions) error {
	doc, err := newPDFDoc(opts)
	if err != nil {
		return err
	}
	tr := doc.tr
	doc.SetTitle(doc.enc(tr.T("title")), opts.FontPath != "")
	doc.SetAuthor("alsepctl", false)
	doc.SetCreator("alsepctl", false)
	doc.SetMargins(15, 20, 15)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	doc.font("B", 18)
	doc.Cell(0, 10, doc.enc(tr.T("title")))
	doc.Ln(12)
	if err := addHashQR(doc, opts.TapeSHA256); err != nil {
		return err
	}
	addSummarySection(doc, rep, opts.TapeSHA256)
	addGateMatrixSection(doc, rep.GateMatrix)
	if opts.Summary != nil {
		addChannelSection(doc, *opts.Summary)
	}
	addFindingsSection(doc, rep.Findings)

	if doc.Err() {
		return doc.Error()
	}
	return doc.OutputFileAndClose(out)
}

func newPDFDoc(opts PDFOptions) (*pdfDoc, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	doc := &pdfDoc{Fpdf: pdf, tr: NewTranslator(opts.Lang), family: "Helvetica"}
	if opts.FontPath != "" {
		pdf.AddUTF8Font(bodyFont, "", opts.FontPath)
		pdf.AddUTF8Font(bodyFont, "B", opts.FontPath)
		if pdf.Err() {
			return nil, pdf.Error()
		}
		doc.family = bodyFont
		doc.enc = func(s string) string { return s }
		return doc, nil
	}
	if doc.tr.Lang() != LangEnglish {
		return nil, fmt.Errorf("report: language %s requires a UTF-8 font", doc.tr.Lang())
	}
	doc.enc = pdf.UnicodeTranslatorFromDescriptor("")
	return doc, nil
}

func addHashQR(doc *pdfDoc, hash string) error {
	if sanitizeHash(hash) == "" {
		return nil
	}
	png, err := HashToQR(hash, 256)
	if err != nil {
		return err
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	doc.RegisterImageOptionsReader("tape-sha256", opt, bytes.NewReader(png))
	pageW, _ := doc.GetPageSize()
	_, _, right, _ := doc.GetMargins()
	doc.ImageOptions("tape-sha256", pageW-right-30, 15, 30, 30, false, opt, 0, "")
	return nil
}

func addSummarySection(doc *pdfDoc, rep rules.AcceptanceReport, hash string) {
	tr := doc.tr
	doc.font("B", 12)
	doc.Cell(0, 8, doc.enc(tr.T("summary")))
	doc.Ln(8)

	doc.font("", 11)
	items := []struct {
		label string
		value string
	}{
		{tr.T("file"), emptyFallback(rep.Summary.File, "-")},
		{tr.T("format"), emptyFallback(rep.Summary.Format, "-")},
		{tr.T("sha256"), emptyFallback(strings.ToLower(sanitizeHash(hash)), "-")},
		{tr.T("records"), strconv.Itoa(rep.Summary.Records)},
		{tr.T("frames"), strconv.Itoa(rep.Summary.Frames)},
		{tr.T("flagged"), strconv.Itoa(rep.Summary.Flagged)},
		{tr.T("total"), strconv.Itoa(rep.Summary.Total)},
		{tr.T("errors"), strconv.Itoa(rep.Summary.Errors)},
		{tr.T("warnings"), strconv.Itoa(rep.Summary.Warnings)},
		{tr.T("overall"), tr.Verdict(rep.Summary.Pass)},
	}
	for _, item := range items {
		doc.CellFormat(45, 6, doc.enc(item.label), "", 0, "L", false, 0, "")
		doc.font("", 9)
		doc.CellFormat(0, 6, doc.enc(item.value), "", 1, "L", false, 0, "")
		doc.font("", 11)
	}
	doc.Ln(4)
}

func addGateMatrixSection(doc *pdfDoc, rows []rules.GateResult) {
	tr := doc.tr
	doc.font("B", 12)
	doc.Cell(0, 8, doc.enc(tr.T("gateMatrix")))
	doc.Ln(9)

	headers := []string{tr.T("col.scope"), tr.T("col.severity"), tr.T("col.rule"),
		tr.T("col.name"), tr.T("col.status"), tr.T("col.count")}
	widths := []float64{22, 22, 30, 70, 18, 18}
	renderHeader(doc, widths, headers)

	doc.font("", 9)
	for _, row := range rows {
		renderTableRow(doc, widths, []string{
			row.Scope,
			severityLabel(row.Severity),
			row.RuleId,
			emptyFallback(row.Name, "-"),
			row.Status,
			strconv.Itoa(row.Count),
		}, 5)
	}
	doc.Ln(4)
}

func addChannelSection(doc *pdfDoc, s summary.Summary) {
	tr := doc.tr
	doc.font("B", 12)
	doc.Cell(0, 8, doc.enc(tr.T("channels")))
	doc.Ln(9)

	if s.Interval.Count > 0 {
		doc.font("", 10)
		line := tr.Format("interval", s.Interval.Mean, s.Interval.StdDev, s.Interval.Count)
		doc.MultiCell(0, 5, doc.enc(line), "", "L", false)
		doc.Ln(2)
	}
	headers := []string{tr.T("col.station"), tr.T("col.channel"), tr.T("col.count"),
		tr.T("col.mean"), tr.T("col.std"), tr.T("col.min"), tr.T("col.max"), tr.T("col.peak")}
	widths := []float64{18, 20, 22, 26, 24, 20, 20, 30}
	renderHeader(doc, widths, headers)

	doc.font("", 9)
	for _, ch := range s.Channels {
		renderTableRow(doc, widths, []string{
			strconv.Itoa(ch.Station),
			ch.Channel,
			strconv.Itoa(ch.Count),
			strconv.FormatFloat(ch.Mean, 'f', 2, 64),
			strconv.FormatFloat(ch.StdDev, 'f', 2, 64),
			strconv.FormatFloat(ch.Min, 'f', 0, 64),
			strconv.FormatFloat(ch.Max, 'f', 0, 64),
			strconv.FormatFloat(ch.PeakHz, 'f', 3, 64),
		}, 5)
	}
	doc.Ln(4)
}

func addFindingsSection(doc *pdfDoc, findings []rules.Diagnostic) {
	tr := doc.tr
	doc.font("B", 12)
	doc.Cell(0, 8, doc.enc(tr.T("findings")))
	doc.Ln(9)

	if len(findings) == 0 {
		doc.font("", 11)
		doc.MultiCell(0, 6, doc.enc(tr.T("noFindings")), "", "L", false)
		return
	}

	for i, d := range findings {
		doc.font("B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))
		doc.MultiCell(0, 5, doc.enc(header), "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			doc.font("", 10)
			doc.MultiCell(0, 5, doc.enc(msg), "", "L", false)
		}
		if meta := findingMetadata(tr, d); meta != "" {
			doc.font("", 9)
			doc.MultiCell(0, 4, doc.enc(meta), "", "L", false)
		}
		if len(d.Refs) > 0 {
			doc.font("", 9)
			doc.MultiCell(0, 4, doc.enc(tr.Format("refs", strings.Join(d.Refs, ", "))), "", "L", false)
		}
		doc.Ln(2)
	}
}

func renderHeader(doc *pdfDoc, widths []float64, headers []string) {
	doc.SetFillColor(240, 240, 240)
	doc.font("B", 10)
	for i, h := range headers {
		doc.CellFormat(widths[i], 7, doc.enc(h), "1", 0, "L", true, 0, "")
	}
	doc.Ln(-1)
}

func renderTableRow(doc *pdfDoc, widths []float64, values []string, lineHeight float64) {
	xStart := doc.GetX()
	yStart := doc.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := doc.SplitText(doc.enc(text), widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		doc.SetXY(x, yStart)
		doc.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	doc.SetXY(xStart, yStart+rowHeight)
}

func severityLabel(sev rules.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(tr Translator, d rules.Diagnostic) string {
	parts := make([]string, 0, 7)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.File != "" {
		parts = append(parts, d.File)
	}
	if d.Station != 0 {
		parts = append(parts, tr.Format("station", d.Station))
	}
	if d.RecordIndex != 0 {
		parts = append(parts, tr.Format("record", d.RecordIndex))
	}
	if d.FrameIndex != 0 {
		parts = append(parts, tr.Format("frame", d.FrameIndex))
	}
	if d.Offset != "" {
		parts = append(parts, tr.Format("offset", d.Offset))
	}
	if d.TimestampUs != nil {
		parts = append(parts, tr.Format("timestamp", *d.TimestampUs))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " / ")
}
