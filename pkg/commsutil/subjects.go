package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	// SubjectResolved receives every resolution event, whatever the host.
	SubjectResolved = "domain.resolved"
	// SubjectHostPrefix prefixes per-host controller subjects.
	SubjectHostPrefix = "domain.host"
	// SubjectServerOpsPrefix prefixes per-host resolution event subjects.
	SubjectServerOpsPrefix = "domain.server-ops"
)

// SafeToken makes a name usable as a single subject token.
func SafeToken(name string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(name)
}

// BuildHostSubject builds the request subject of the controller owning a host.
func BuildHostSubject(host string) string {
	return fmt.Sprintf("%s.%s", SubjectHostPrefix, SafeToken(host))
}

// BuildServerOpsSubject builds the granular resolution event subject of a host.
func BuildServerOpsSubject(host string) string {
	return fmt.Sprintf("%s.%s", SubjectServerOpsPrefix, SafeToken(host))
}
