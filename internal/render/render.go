// Package render turns outbox events into emails. Rendering depends only on its
// arguments, so a retried row produces the same message.
package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/pkg/encoding"
)

const defaultAccent = "#1f6feb"

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func New() *Renderer {
	return &Renderer{
		html: htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout)),
		text: texttemplate.Must(texttemplate.New("text").Parse(textLayout)),
	}
}

// view is the only data templates can reach
type view struct {
	ShopName        string
	CustomerName    string
	FirstName       string
	ServiceName     string
	StaffName       string
	When            string
	Date            string
	Time            string
	PreviousWhen    string
	CancelledByShop bool
}

type layout struct {
	Heading     string
	Intro       string
	Footer      string
	ManageURL   string
	LogoURL     string
	ShopName    string
	AccentColor string
}

func (r *Renderer) Render(eventType models.EventType, p models.EventPayload, b models.Branding) (models.EmailMessage, error) {
	base, ok := BaseTemplate(eventType)
	if !ok {
		return models.EmailMessage{}, fmt.Errorf("no template for event type %q", eventType)
	}
	if b.Footer != "" {
		base.Footer = b.Footer
	}
	var overrides *models.TemplateOverrides
	if o, ok := b.Templates[eventType]; ok {
		overrides = &o
	}
	tpl := ResolveTemplate(base, overrides)

	v := newView(p, b)
	subject := block(tpl.Subject, base.Subject, v)
	l := layout{
		Heading:     block(tpl.Heading, base.Heading, v),
		Intro:       block(tpl.Intro, base.Intro, v),
		Footer:      block(tpl.Footer, base.Footer, v),
		LogoURL:     b.LogoURL,
		ShopName:    v.ShopName,
		AccentColor: accent(b.AccentColor),
	}
	if eventType != models.EventBookingCancelled {
		l.ManageURL = p.ManageURL
	}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, l); err != nil {
		return models.EmailMessage{}, fmt.Errorf("render html: %w", err)
	}
	if err := r.text.Execute(&text, l); err != nil {
		return models.EmailMessage{}, fmt.Errorf("render text: %w", err)
	}

	return models.EmailMessage{
		To:        p.CustomerEmail,
		ReplyTo:   b.ReplyTo,
		Subject:   strings.Join(strings.Fields(subject), " "),
		HTML:      html.String(),
		Text:      text.String(),
		EventType: eventType,
	}, nil
}

// block executes a shop-supplied block, falling back to the base one when the
// override does not parse or execute
func block(src, fallback string, v view) string {
	if out, err := execute(src, v); err == nil {
		return out
	}
	out, _ := execute(fallback, v)
	return out
}

func execute(src string, v view) (string, error) {
	t, err := texttemplate.New("block").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newView(p models.EventPayload, b models.Branding) view {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}

	shopName := p.ShopName
	if b.ShopName != "" {
		shopName = b.ShopName
	}

	v := view{
		ShopName:        shopName,
		CustomerName:    encoding.DisplayName(p.CustomerName),
		FirstName:       encoding.FirstName(p.CustomerName),
		ServiceName:     p.ServiceName,
		StaffName:       p.StaffName,
		CancelledByShop: p.CancelledBy == models.ActorShop,
	}
	if !p.StartAt.IsZero() {
		start := p.StartAt.In(loc)
		v.When = FormatWhen(start)
		v.Date = start.Format("Monday, January 2")
		v.Time = start.Format("3:04 PM")
	}
	if p.PreviousStartAt != nil {
		v.PreviousWhen = FormatWhen(p.PreviousStartAt.In(loc))
	}
	if v.FirstName == "" {
		v.FirstName = "there"
	}
	return v
}

// FormatWhen renders a local instant as "Tuesday, March 10 at 9:00 AM"
func FormatWhen(t time.Time) string {
	return t.Format("Monday, January 2 at 3:04 PM")
}

func accent(c string) string {
	if hexColor.MatchString(c) {
		return c
	}
	return defaultAccent
}
