package protocol

import (
	"fmt"
	"strings"
)

// Platform is an external ticket-tracking system a ticket can be pushed to.
type Platform string

const (
	PlatformJira     Platform = "JIRA"
	PlatformShortcut Platform = "SHORTCUT"
	PlatformAsana    Platform = "ASANA"
)

// Platforms lists every supported destination.
func Platforms() []Platform {
	return []Platform{PlatformJira, PlatformShortcut, PlatformAsana}
}

// ParsePlatform converts user input to a Platform. Matching is
// case-insensitive. An empty or unknown value is an error; there is no
// default destination.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PlatformJira):
		return PlatformJira, nil
	case string(PlatformShortcut):
		return PlatformShortcut, nil
	case string(PlatformAsana):
		return PlatformAsana, nil
	}
	return "", fmt.Errorf("unknown platform %q (want JIRA, SHORTCUT, or ASANA)", s)
}
