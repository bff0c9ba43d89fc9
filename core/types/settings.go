package types

import (
	"strings"
	"time"
)

// SupportChannels lists the support contacts shown to users.
type SupportChannels struct {
	WhatsApp string `json:"whatsapp" yaml:"whatsapp" validate:"max=64"`
	Telegram string `json:"telegram" yaml:"telegram" validate:"max=256"`
	Email    string `json:"email" yaml:"email" validate:"omitempty,email"`
}

// AppSettings is the admin owned singleton read by every client.
type AppSettings struct {
	CollectionAddress string          `json:"upiId" yaml:"upi_id" validate:"max=128"`
	SiteOrigin        string          `json:"websiteUrl" yaml:"website_url" validate:"omitempty,url"`
	Support           SupportChannels `json:"support" yaml:"support"`
	UpdatedAt         *time.Time      `json:"updatedAt,omitempty" yaml:"-"`
	UpdatedBy         string          `json:"updatedBy,omitempty" yaml:"-"`
}

// Normalize trims whitespace and the trailing slash of the site origin.
func (s *AppSettings) Normalize() {
	s.CollectionAddress = strings.TrimSpace(s.CollectionAddress)
	s.SiteOrigin = strings.TrimRight(strings.TrimSpace(s.SiteOrigin), "/")
	s.Support.WhatsApp = strings.TrimSpace(s.Support.WhatsApp)
	s.Support.Telegram = strings.TrimSpace(s.Support.Telegram)
	s.Support.Email = strings.TrimSpace(s.Support.Email)
}
