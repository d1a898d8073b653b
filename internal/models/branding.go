package models

// Branding is the per-shop presentation config. Only these fields are honoured;
// unknown keys in the stored JSON are dropped on decode.
type Branding struct {
	ShopName    string                          `json:"shop_name,omitempty"`
	AccentColor string                          `json:"accent_color,omitempty"`
	LogoURL     string                          `json:"logo_url,omitempty"`
	ReplyTo     string                          `json:"reply_to,omitempty"`
	Footer      string                          `json:"footer,omitempty"`
	Templates   map[EventType]TemplateOverrides `json:"templates,omitempty"`
}

// TemplateOverrides replaces individual text blocks of a base template
type TemplateOverrides struct {
	Subject *string `json:"subject,omitempty"`
	Heading *string `json:"heading,omitempty"`
	Intro   *string `json:"intro,omitempty"`
	Footer  *string `json:"footer,omitempty"`
}
