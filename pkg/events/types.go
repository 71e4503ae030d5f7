// Package events defines resolution events and the publishers that emit them.
package events

import (
	"time"

	"github.com/morezero/domain-controller/pkg/model"
)

// ServerGroupEvent summarizes one server group of a resolved operation.
type ServerGroupEvent struct {
	Servers []string   `json:"servers"`
	Op      model.Node `json:"op"`
}

// ResolutionEvent is emitted when a domain operation has been resolved into server operations.
type ResolutionEvent struct {
	RequestID    string             `json:"requestId"`
	Host         string             `json:"host"`
	Operation    string             `json:"operation"`
	Address      string             `json:"address"`
	ServerGroups []ServerGroupEvent `json:"serverGroups"`
	Timestamp    string             `json:"timestamp"`
}

// ServerCount returns the number of servers across all groups.
func (e *ResolutionEvent) ServerCount() int {
	n := 0
	for _, g := range e.ServerGroups {
		n += len(g.Servers)
	}
	return n
}

// Now formats the current time the way events carry it.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
