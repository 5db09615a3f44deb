// Package device summarises a User-Agent header into os, browser and device
// class.
package device

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

const (
	unknownOS      = "Unknown OS"
	unknownBrowser = "Unknown Browser"

	ClassDesktop = "Desktop"
	ClassMobile  = "Mobile"
	ClassTablet  = "Tablet"
	ClassBot     = "Bot"
)

// Info is the parsed view of a User-Agent.
type Info struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Parse never fails; unrecognised parts come back as "Unknown ...".
func Parse(userAgent string) Info {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Info{OS: unknownOS, Browser: unknownBrowser, Device: ClassDesktop}
	}

	ua := useragent.New(userAgent)
	info := Info{
		OS:      ua.OS(),
		Browser: unknownBrowser,
		Device:  classify(ua, userAgent),
	}
	if info.OS == "" {
		info.OS = unknownOS
	}
	if name, version := ua.Browser(); name != "" {
		info.Browser = name
		if major, _, _ := strings.Cut(version, "."); major != "" {
			info.Browser = name + " " + major
		}
	}
	return info
}

func classify(ua *useragent.UserAgent, raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case ua.Bot():
		return ClassBot
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return ClassTablet
	case strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return ClassTablet
	case ua.Mobile():
		return ClassMobile
	default:
		return ClassDesktop
	}
}

// String renders the "os - browser - device" form stored on attendance rows.
func (i Info) String() string {
	return fmt.Sprintf("%s - %s - %s", i.OS, i.Browser, i.Device)
}

// Summary is Parse(userAgent).String().
func Summary(userAgent string) string {
	return Parse(userAgent).String()
}
