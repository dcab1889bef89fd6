// Package markup converts Trac wiki formatting into GitHub flavoured
// Markdown and absolute links back into the original Trac site.
package markup

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultManualURL is the documentation site targeted by G7: style
// InterMapTxt references.
const DefaultManualURL = "https://grass.osgeo.org"

var (
	codeOpenRe   = regexp.MustCompile(`\{\{\{(\s*#!(\w+))?`)
	codeCloseRe  = regexp.MustCompile(`\}\}\}`)
	ticketRefRe  = regexp.MustCompile(`#([0-9]+)`)
	revisionRe   = regexp.MustCompile(`\br([0-9]{1,5})`)
	sectionRe    = regexp.MustCompile(`==(.*)==`)
	lineBreakRe  = regexp.MustCompile(`\[\[BR\]\]`)
	httpLinkRe   = regexp.MustCompile(`\[http://(.*)\]`)
	httpsLinkRe  = regexp.MustCompile(`\[https://(.*)\]`)
	wikiLinkRe   = regexp.MustCompile(`wiki:([a-zA-Z0-9#/]\S*)`)
	sourceLinkRe = regexp.MustCompile(`source:([a-zA-Z0-9#/]\S*)`)
	imageMacroRe = regexp.MustCompile(`\[\[Image\(([a-zA-Z0-9_.\-]*),?.*\)\]\]`)
)

// manualRefs maps InterMapTxt prefixes to manual paths. Checked in order.
var manualRefs = []struct {
	prefix *regexp.Regexp
	path   string
}{
	{regexp.MustCompile(`G7:(\S+)`), "grass77/manuals"},
	{regexp.MustCompile(`G70:(\S+)`), "grass70/manuals"},
	{regexp.MustCompile(`G72:(\S+)`), "grass72/manuals"},
	{regexp.MustCompile(`G74:(\S+)`), "grass74/manuals"},
	{regexp.MustCompile(`G76:(\S+)`), "grass76/manuals"},
	{regexp.MustCompile(`G78:(\S+)`), "grass78/manuals"},
	{regexp.MustCompile(`G7A:(\S+)`), "grass7/manuals/addons"},
}

// Translator rewrites Trac markup. The zero value is not usable; build
// one with New.
type Translator struct {
	tracURL   string
	manualURL string
}

// New creates a translator that links back into the Trac site at tracURL
func New(tracURL, manualURL string) *Translator {
	if manualURL == "" {
		manualURL = DefaultManualURL
	}
	return &Translator{
		tracURL:   strings.TrimRight(tracURL, "/"),
		manualURL: strings.TrimRight(manualURL, "/"),
	}
}

// TicketURL returns the absolute URL of a Trac ticket
func (t *Translator) TicketURL(id int) string {
	return t.tracURL + "/ticket/" + strconv.Itoa(id)
}

// AttachmentURL returns the URL of a ticket attachment's Trac page
func (t *Translator) AttachmentURL(id int, filename string) string {
	return t.tracURL + "/attachment/ticket/" + strconv.Itoa(id) + "/" + filename
}

// Translate converts text. When remap is non-nil, #N references to tickets
// in remap become #remap[N]; every other #N becomes a link to the Trac
// ticket. ticketID scopes Image macros to the current ticket's
// attachments.
func (t *Translator) Translate(text string, remap map[int]int, ticketID int) string {
	text = codeOpenRe.ReplaceAllString(text, "```$2")
	text = codeCloseRe.ReplaceAllString(text, "```")

	text = stripNonASCII(text)

	text = ticketRefRe.ReplaceAllStringFunc(text, func(m string) string {
		id, err := strconv.Atoi(m[1:])
		if err != nil {
			return m
		}
		if remap != nil {
			if dst, ok := remap[id]; ok {
				return "#" + strconv.Itoa(dst)
			}
		}
		return t.TicketURL(id)
	})

	text = revisionRe.ReplaceAllString(text, t.tracURL+"/changeset/$1")
	text = sectionRe.ReplaceAllString(text, "## $1")
	text = lineBreakRe.ReplaceAllString(text, "")
	text = httpLinkRe.ReplaceAllString(text, "http://$1")
	text = httpsLinkRe.ReplaceAllString(text, "https://$1")

	for _, ref := range manualRefs {
		text = ref.prefix.ReplaceAllString(text, t.manualURL+"/"+ref.path+"/$1.html")
	}

	text = wikiLinkRe.ReplaceAllString(text, t.tracURL+"/wiki/$1")
	text = sourceLinkRe.ReplaceAllString(text, t.tracURL+"/browser/$1")
	text = imageMacroRe.ReplaceAllString(text, t.tracURL+"/raw-attachment/ticket/"+strconv.Itoa(ticketID)+"/$1")

	return text
}

// stripNonASCII drops every rune outside 7-bit ASCII. Invalid UTF-8
// decodes to utf8.RuneError and is dropped with it.
func stripNonASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0x7f {
			return -1
		}
		return r
	}, s)
}
