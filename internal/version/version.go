package version

import "fmt"

var (
	AppName    = "suilend-agent"
	AppVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", AppVersion, Commit, BuildDate)
}
