package app

import (
	"strings"
	"time"
)

// Version and BuildDate are stamped via -ldflags in release builds; local
// builds report "dev" with no date.
var (
	Version   = "dev"
	BuildDate = ""
)

// VersionString is what the eatup CLI logs at startup: the stamped version,
// with the build day appended when a parseable RFC 3339 date was stamped.
func VersionString() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		version = "dev"
	}

	stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(BuildDate))
	if err != nil {
		return version
	}

	return version + " (" + stamp.Format("2006-01-02") + ")"
}
