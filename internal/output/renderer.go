package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"go-mailflow-dashboard/internal/queue"
	"go-mailflow-dashboard/internal/smtplog"
	"go-mailflow-dashboard/internal/tracking"
)

// Renderer writes dashboard views for `inspect`.
type Renderer interface {
	Journeys(journeys []tracking.Journey, detail bool) error
	Sessions(rows []smtplog.Row, detail bool) error
	Queue(summary queue.Summary, refreshedAt *time.Time) error
}

// New picks a renderer by format name: "json", or text for anything else.
func New(w io.Writer, format string, loc *time.Location) Renderer {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return NewJSONRenderer(w, loc)
	}
	return NewTextRenderer(w, loc)
}

// ---------------------------------------------------------------------------
// Text renderer
// ---------------------------------------------------------------------------

var (
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	styleID      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleRetry   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleDetail  = lipgloss.NewStyle().PaddingLeft(4)
	styleSection = lipgloss.NewStyle().Bold(true).Underline(true)
)

// TextRenderer prints styled, human oriented text.
type TextRenderer struct {
	w   io.Writer
	loc *time.Location
	now func() time.Time
}

func NewTextRenderer(w io.Writer, loc *time.Location) *TextRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &TextRenderer{w: w, loc: loc, now: time.Now}
}

func (r *TextRenderer) Journeys(journeys []tracking.Journey, detail bool) error {
	if _, err := fmt.Fprintln(r.w, styleSection.Render(fmt.Sprintf("Message tracking (%s journeys)", humanize.Comma(int64(len(journeys)))))); err != nil {
		return err
	}
	for _, j := range journeys {
		marker := styleOK.Render("ok  ")
		if j.HasFailure {
			marker = styleFailed.Render("FAIL")
		}
		line := fmt.Sprintf("%s %s %s  %s -> %s  %s  %s",
			marker,
			j.TimestampDisplay,
			styleID.Render(j.MessageID),
			j.Sender,
			j.Recipients,
			styleHeader.Render(j.Subject),
			styleDim.Render(j.ProcessingTime),
		)
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return err
		}
		if !detail {
			continue
		}
		for _, d := range tracking.Detail(j, r.loc) {
			text := fmt.Sprintf("%s %-18s %s  %s", d.Icon, d.EventID, d.Timestamp, styleDim.Render(d.Source))
			if _, err := fmt.Fprintln(r.w, styleDetail.Render(text)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *TextRenderer) Sessions(rows []smtplog.Row, detail bool) error {
	if _, err := fmt.Fprintln(r.w, styleSection.Render(fmt.Sprintf("SMTP sessions (%s)", humanize.Comma(int64(len(rows)))))); err != nil {
		return err
	}
	for _, row := range rows {
		line := fmt.Sprintf("%5d %s  %s -> %s  %s",
			row.SortOrder,
			row.StartDisplay,
			styleID.Render(row.From),
			row.To,
			styleDim.Render(row.Direction),
		)
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return err
		}
		if !detail {
			continue
		}
		for _, d := range row.Detail {
			if _, err := fmt.Fprintln(r.w, styleDetail.Render(fmt.Sprintf("%s %s %s", d.Timestamp, d.Direction, d.Data))); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *TextRenderer) Queue(s queue.Summary, refreshedAt *time.Time) error {
	when := "never refreshed"
	if refreshedAt != nil {
		when = "refreshed " + humanize.RelTime(*refreshedAt, r.now(), "ago", "from now")
	}
	lines := []string{
		styleSection.Render("Queue") + " " + styleDim.Render(when),
		fmt.Sprintf("  total   %s", humanize.Comma(int64(s.Total))),
		fmt.Sprintf("  retry   %s", styleRetry.Render(humanize.Comma(int64(s.Retry)))),
		fmt.Sprintf("  failed  %s", styleFailed.Render(humanize.Comma(int64(s.Failed)))),
		fmt.Sprintf("  other   %s", humanize.Comma(int64(s.Other))),
	}
	_, err := fmt.Fprintln(r.w, strings.Join(lines, "\n"))
	return err
}

// ---------------------------------------------------------------------------
// JSON renderer
// ---------------------------------------------------------------------------

// JSONRenderer writes one indented JSON document per call, for piping.
type JSONRenderer struct {
	enc *json.Encoder
	loc *time.Location
}

func NewJSONRenderer(w io.Writer, loc *time.Location) *JSONRenderer {
	if loc == nil {
		loc = time.Local
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONRenderer{enc: enc, loc: loc}
}

type journeyDoc struct {
	tracking.Journey
	Detail []tracking.DetailLine `json:"detail,omitempty"`
}

func (r *JSONRenderer) Journeys(journeys []tracking.Journey, detail bool) error {
	out := make([]journeyDoc, 0, len(journeys))
	for _, j := range journeys {
		doc := journeyDoc{Journey: j.Summary()}
		if detail {
			doc.Detail = tracking.Detail(j, r.loc)
		}
		out = append(out, doc)
	}
	return r.enc.Encode(out)
}

func (r *JSONRenderer) Sessions(rows []smtplog.Row, detail bool) error {
	out := make([]smtplog.Row, len(rows))
	copy(out, rows)
	if !detail {
		for i := range out {
			out[i].Detail = nil
		}
	}
	return r.enc.Encode(out)
}

func (r *JSONRenderer) Queue(s queue.Summary, refreshedAt *time.Time) error {
	return r.enc.Encode(struct {
		queue.Summary
		RefreshedAt *time.Time `json:"refreshed_at"`
	}{s, refreshedAt})
}
