package booking

import (
	"net/mail"
	"strings"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/pkg/encoding"
	"github.com/nyaruka/phonenumbers"
)

type CustomerInput struct {
	Name  string
	Phone string
	Email string
}

// NormalizePhone returns the E.164 form of raw. Numbers without a country code
// are read in defaultRegion.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", models.ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", models.ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func normalizeEmail(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return nil, models.ErrInvalidEmail
	}
	email := strings.ToLower(addr.Address)
	return &email, nil
}

func (s *Service) normalizeCustomer(in CustomerInput) (models.Customer, error) {
	name := encoding.NormalizeName(in.Name)
	if name == "" {
		return models.Customer{}, models.ErrInvalidName
	}
	phone, err := NormalizePhone(in.Phone, s.phoneRegion)
	if err != nil {
		return models.Customer{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return models.Customer{}, err
	}
	return models.Customer{Name: name, Phone: phone, Email: email}, nil
}
