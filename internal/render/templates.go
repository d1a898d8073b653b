package render

import "github.com/Guizzs26/slotbook/internal/models"

// Template holds the text blocks of one email. Each block is a text/template
// executed against the message view.
type Template struct {
	Subject string
	Heading string
	Intro   string
	Footer  string
}

const defaultFooter = `{{.ShopName}}`

var baseTemplates = map[models.EventType]Template{
	models.EventBookingConfirmed: {
		Subject: `Your booking at {{.ShopName}} is confirmed`,
		Heading: `See you soon, {{.FirstName}}!`,
		Intro:   `{{.ServiceName}} with {{.StaffName}} on {{.When}}.`,
		Footer:  defaultFooter,
	},
	models.EventBookingUpdated: {
		Subject: `Your booking at {{.ShopName}} has changed`,
		Heading: `Hi {{.FirstName}}, your booking moved`,
		Intro:   `{{.ServiceName}} with {{.StaffName}} is now on {{.When}}{{if .PreviousWhen}} (was {{.PreviousWhen}}){{end}}.`,
		Footer:  defaultFooter,
	},
	models.EventBookingCancelled: {
		Subject: `Your booking at {{.ShopName}} was cancelled`,
		Heading: `Hi {{.FirstName}}, your booking was cancelled`,
		Intro:   `{{.ServiceName}} on {{.When}} has been cancelled{{if .CancelledByShop}} by {{.ShopName}}{{end}}.`,
		Footer:  defaultFooter,
	},
	models.EventReminderNextDay: {
		Subject: `Reminder: {{.ServiceName}} tomorrow at {{.Time}}`,
		Heading: `See you tomorrow, {{.FirstName}}`,
		Intro:   `{{.ServiceName}} with {{.StaffName}} at {{.ShopName}} on {{.When}}.`,
		Footer:  defaultFooter,
	},
}

// BaseTemplate returns the built-in blocks for an event type
func BaseTemplate(t models.EventType) (Template, bool) {
	tpl, ok := baseTemplates[t]
	return tpl, ok
}

// ResolveTemplate overlays shop overrides on a base template. Only the four known
// blocks can be replaced; an empty override keeps the base block.
func ResolveTemplate(base Template, o *models.TemplateOverrides) Template {
	if o == nil {
		return base
	}
	out := base
	pick(&out.Subject, o.Subject)
	pick(&out.Heading, o.Heading)
	pick(&out.Intro, o.Intro)
	pick(&out.Footer, o.Footer)
	return out
}

func pick(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

const htmlLayout = `<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #222;">
{{- if .LogoURL}}
<img src="{{.LogoURL}}" alt="{{.ShopName}}" style="max-height: 48px;">
{{- end}}
<h1 style="color: {{.AccentColor}};">{{.Heading}}</h1>
<p>{{.Intro}}</p>
{{- if .ManageURL}}
<p><a href="{{.ManageURL}}" style="color: {{.AccentColor}};">Reschedule or cancel</a></p>
{{- end}}
<hr>
<p style="font-size: 12px; color: #777;">{{.Footer}}</p>
</body>
</html>
`

const textLayout = `{{.Heading}}

{{.Intro}}
{{- if .ManageURL}}

Reschedule or cancel: {{.ManageURL}}
{{- end}}

--
{{.Footer}}
`
