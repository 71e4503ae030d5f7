// Package domain maps domain-wide operations onto the servers of one host.
package domain

import (
	"fmt"
	"sort"

	"github.com/morezero/domain-controller/pkg/model"
)

const logPrefix = "domain:server_operations"

// ServerIdentity identifies one managed server process.
type ServerIdentity struct {
	HostName        string `json:"host-name"`
	ServerGroupName string `json:"server-group-name"`
	ServerName      string `json:"server-name"`
}

func (s ServerIdentity) String() string {
	return s.HostName + "/" + s.ServerGroupName + "/" + s.ServerName
}

// Less orders identities by host, then group, then name.
func (s ServerIdentity) Less(o ServerIdentity) bool {
	if s.HostName != o.HostName {
		return s.HostName < o.HostName
	}
	if s.ServerGroupName != o.ServerGroupName {
		return s.ServerGroupName < o.ServerGroupName
	}
	return s.ServerName < o.ServerName
}

// ServerGroupOperation is one operation body and the servers that must run it.
type ServerGroupOperation struct {
	Servers []ServerIdentity
	Op      model.Node
}

// ServerOperations is the resolved mapping from server sets to operation bodies.
type ServerOperations []ServerGroupOperation

// Servers returns every server in the mapping.
func (so ServerOperations) Servers() []ServerIdentity {
	var out []ServerIdentity
	for _, g := range so {
		out = append(out, g.Servers...)
	}
	return out
}

// Validate checks the server sets are pairwise disjoint and non-empty.
func (so ServerOperations) Validate() error {
	seen := map[ServerIdentity]int{}
	for i, g := range so {
		if len(g.Servers) == 0 {
			return &ResolutionError{Code: CodeResolutionFailed, Message: fmt.Sprintf("group %d has no servers", i)}
		}
		for _, s := range g.Servers {
			if prev, ok := seen[s]; ok {
				return &ResolutionError{
					Code:    CodeConflictingOperations,
					Message: fmt.Sprintf("server %s appears in groups %d and %d", s, prev, i),
				}
			}
			seen[s] = i
		}
	}
	return nil
}

// Grouper accumulates per-server operation bodies and groups structurally equal ones.
type Grouper struct {
	groups   []*pendingGroup
	byKey    map[string]*pendingGroup
	byServer map[ServerIdentity]string
}

type pendingGroup struct {
	servers []ServerIdentity
	op      model.Node
}

// NewGrouper creates an empty Grouper.
func NewGrouper() *Grouper {
	return &Grouper{
		byKey:    map[string]*pendingGroup{},
		byServer: map[ServerIdentity]string{},
	}
}

// Add records that server must run op. Adding the same server twice with an equal body
// is a no-op; with a different body it is an error.
func (g *Grouper) Add(server ServerIdentity, op model.Node) error {
	canonical, err := model.Canonical(op)
	if err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	key := string(canonical)

	if prev, ok := g.byServer[server]; ok {
		if prev == key {
			return nil
		}
		return &ResolutionError{
			Code:    CodeConflictingOperations,
			Message: fmt.Sprintf("server %s resolved to two different operations: %s and %s", server, prev, key),
		}
	}
	g.byServer[server] = key

	grp, ok := g.byKey[key]
	if !ok {
		grp = &pendingGroup{op: model.Clone(op)}
		g.byKey[key] = grp
		g.groups = append(g.groups, grp)
	}
	grp.servers = append(grp.servers, server)
	return nil
}

// Len returns the number of distinct servers added.
func (g *Grouper) Len() int {
	return len(g.byServer)
}

// Result returns the groups, servers sorted within each group and groups ordered by first server.
func (g *Grouper) Result() ServerOperations {
	out := make(ServerOperations, 0, len(g.groups))
	for _, grp := range g.groups {
		servers := make([]ServerIdentity, len(grp.servers))
		copy(servers, grp.servers)
		sort.Slice(servers, func(i, j int) bool { return servers[i].Less(servers[j]) })
		out = append(out, ServerGroupOperation{Servers: servers, Op: grp.op})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Servers[0].Less(out[j].Servers[0]) })
	return out
}
