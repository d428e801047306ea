package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"triage-client/handler"
	"triage-client/internal/domain"
)

// Disclaimer is shown before every conversation and under every verdict.
const Disclaimer = "This is an AI-powered triage assistant and should not replace professional medical advice. " +
	"In case of emergency, please call 911 immediately."

const processingText = "Processing..."

var urgencyLabels = map[domain.UrgencyLevel]string{
	domain.UrgencyCall911:  "Call 911 - Emergency",
	domain.UrgencyUrgentGP: "Urgent Care - See GP Soon",
	domain.UrgencySeeGP:    "See GP - Schedule Appointment",
	domain.UrgencyStayHome: "Stay Home - Self Care",
}

var urgencyColors = map[domain.UrgencyLevel]string{
	domain.UrgencyCall911:  "#dc2626",
	domain.UrgencyUrgentGP: "#ea580c",
	domain.UrgencySeeGP:    "#ca8a04",
	domain.UrgencyStayHome: "#16a34a",
}

const unknownUrgencyColor = "#6b7280"

// UrgencyLabel returns the display label for a level. Unrecognised levels are
// shown verbatim.
func UrgencyLabel(level domain.UrgencyLevel) string {
	if label, ok := urgencyLabels[level]; ok {
		return label
	}
	return string(level)
}

// Renderer turns handler views into terminal text. In plain mode it emits no
// escape sequences, which keeps piped output and tests stable.
type Renderer struct {
	profile  termenv.Profile
	markdown func(string) (string, error)
}

// NewRenderer returns a Renderer. rich enables colour and glamour markdown.
func NewRenderer(rich bool) *Renderer {
	r := &Renderer{profile: termenv.Ascii}
	if !rich {
		return r
	}
	r.profile = termenv.ColorProfile()
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		r.markdown = md.Render
	}
	return r
}

// Banner is the greeting printed when a conversation begins.
func (r *Renderer) Banner() string {
	title := r.profile.String("Symptom Triage").Foreground(r.profile.Color("#818cf8")).Bold()
	return fmt.Sprintf("%s\n%s\n", title, r.dim(Disclaimer))
}

// Entry renders one transcript line.
func (r *Renderer) Entry(e domain.TranscriptEntry) string {
	switch e.Role {
	case domain.RoleUser:
		return fmt.Sprintf("%s %s", r.profile.String("You:").Bold(), e.Text)
	case domain.RoleAssistant:
		who := r.profile.String("Assistant:").Foreground(r.profile.Color("#818cf8")).Bold()
		return fmt.Sprintf("%s %s", who, e.Text)
	default:
		return e.Text
	}
}

// Transcript renders every entry, one per line.
func (r *Renderer) Transcript(entries []domain.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(r.Entry(e))
		b.WriteByte('\n')
	}
	return b.String()
}

// Badge renders the urgency label in its colour.
func (r *Renderer) Badge(level domain.UrgencyLevel) string {
	color, ok := urgencyColors[level]
	if !ok {
		color = unknownUrgencyColor
	}
	return r.profile.String(UrgencyLabel(level)).Foreground(r.profile.Color(color)).Bold().String()
}

// VerdictMarkdown formats a verdict as a markdown card.
func VerdictMarkdown(v domain.Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", UrgencyLabel(v.UrgencyLevel))
	if v.Confidence != "" {
		fmt.Fprintf(&b, "Confidence: **%s**\n\n", v.Confidence)
	}
	writeList(&b, "What to do", v.RecommendedActions)
	writeList(&b, "Watch for", v.WarningSigns)
	fmt.Fprintf(&b, "> %s\n", Disclaimer)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteByte('\n')
}

// Verdict renders the verdict card, through glamour when available.
func (r *Renderer) Verdict(v domain.Verdict) string {
	md := VerdictMarkdown(v)
	if r.markdown != nil {
		if out, err := r.markdown(md); err == nil {
			return r.Badge(v.UrgencyLevel) + "\n" + out
		}
	}
	return md
}

// Status renders what the user should see below the transcript for a view:
// the verdict, a pending error, the busy marker or the input prompt.
func (r *Renderer) Status(v handler.View) string {
	switch {
	case v.Verdict != nil:
		return r.Verdict(*v.Verdict) + "\nType /reset to start over or /quit to exit.\n"
	case v.Busy:
		return r.dim(processingText) + "\n"
	case v.LastError != "":
		msg := r.profile.String("Error: " + v.LastError).Foreground(r.profile.Color("#dc2626")).String()
		hint := fmt.Sprintf("Type /retry to try again (%d left) or enter new text.", v.RetriesLeft)
		if !v.CanRetry {
			hint = "Retry limit reached. Enter new text or /reset."
		}
		return fmt.Sprintf("%s\n%s\n%s", msg, r.dim(hint), r.Prompt(v))
	default:
		return r.Prompt(v)
	}
}

// Prompt renders the input label and placeholder.
func (r *Renderer) Prompt(v handler.View) string {
	if v.Prompt.Label == "" {
		return ""
	}
	return fmt.Sprintf("%s %s\n> ", v.Prompt.Label, r.dim("("+v.Prompt.Placeholder+")"))
}

func (r *Renderer) dim(s string) string {
	return r.profile.String(s).Faint().String()
}
