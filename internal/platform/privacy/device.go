package privacy

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceSummary is the coarse, non-identifying shape of a User-Agent:
// browser family, operating system family, and form factor. Versions and
// build strings are dropped.
type DeviceSummary struct {
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	FormFactor string `json:"form_factor"`
}

// DescribeAgent reduces a User-Agent header to a DeviceSummary.
func DescribeAgent(userAgent string) DeviceSummary {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceSummary{Browser: "unknown", OS: "unknown", FormFactor: "unknown"}
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	formFactor := "desktop"
	switch {
	case ua.Bot():
		formFactor = "bot"
	case ua.Mobile():
		formFactor = "mobile"
	}

	return DeviceSummary{
		Browser:    family(browser),
		OS:         osFamily(ua.OSInfo().Name),
		FormFactor: formFactor,
	}
}

// String renders "Browser on OS (form factor)" for audit detail.
func (d DeviceSummary) String() string {
	return d.Browser + " on " + d.OS + " (" + d.FormFactor + ")"
}

func family(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	return name
}

// osFamily strips version suffixes such as "Mac OS X 10_15_7".
func osFamily(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "unknown"
	case strings.Contains(name, "Mac OS X"), strings.HasPrefix(name, "macOS"):
		return "macOS"
	case strings.HasPrefix(name, "Windows"):
		return "Windows"
	case strings.HasPrefix(name, "Android"):
		return "Android"
	case strings.HasPrefix(name, "iPhone"), strings.HasPrefix(name, "iPad"), strings.HasPrefix(name, "iOS"), strings.HasPrefix(name, "CPU"):
		return "iOS"
	case strings.Contains(name, "Linux"):
		return "Linux"
	}
	return name
}
