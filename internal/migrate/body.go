package migrate

import (
	"strings"
	"time"

	"github.com/clintrovert/trac2github/pkg/types"
)

const timeLayout = "2 Jan 2006 15:04 MST"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// issueBody renders the body of a new issue
func (e *Engine) issueBody(t types.Ticket, platform string) string {
	var b strings.Builder

	b.WriteString("**Reported by " + e.username(t.Reporter) + " on " + formatTime(t.Time) + "**\n")
	if t.Description == "" {
		b.WriteString("None")
	} else {
		b.WriteString(e.translator.Translate(t.Description, e.remap, t.ID))
	}
	b.WriteString("\n")

	if types.MeaningfulPlatform(platform) {
		b.WriteString("\n### Operating system\n" + platform + "\n")
	}
	if t.Version != "" && t.Version != "unspecified" {
		b.WriteString("\n### " + e.opts.VersionHeading + "\n" + t.Version + "\n")
	}
	if e.opts.AddMigratedSuffix {
		b.WriteString("\n\nMigrated-From: " + e.translator.TicketURL(t.ID))
	}

	return b.String()
}

// commentBody renders a comment change
func (e *Engine) commentBody(ticketID int, c types.Change) string {
	who := e.username(c.Author) + " on " + formatTime(c.Time)
	if c.NewValue == "" {
		return "**Modified by " + who + "**"
	}
	text := "**Comment by " + who + "**\n" + c.NewValue
	return e.translator.Translate(text, e.remap, ticketID)
}

// attachmentBody renders the comment announcing an attachment. The link
// is appended after translation so the filename is left alone.
func (e *Engine) attachmentBody(a types.Attachment) string {
	text := "**Attachment from " + e.username(a.Author) + " on " + formatTime(a.Time) + "**\n" + a.Description + "\n"
	return e.translator.Translate(text, nil, a.TicketID) + e.translator.AttachmentURL(a.TicketID, a.Filename) + "\n"
}
