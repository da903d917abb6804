package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent turns a User-Agent header into a short label such as
// "Chrome on Mac OS X", used in audit events.
func ParseUserAgent(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return unknownDevice
	}
	ua := useragent.New(userAgent)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	var platform string
	if ua.Mobile() {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = ua.OSInfo().Name
	}
	if platform == "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.TrimSpace(browser) + " on " + strings.TrimSpace(platform)
}
