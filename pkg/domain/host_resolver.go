package domain

import (
	"fmt"
	"log/slog"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
)

const hostResolverLogPrefix = "domain:host_resolver"

// Model keys.
const (
	KeyProfile            = "profile"
	KeySocketBindingGroup = "socket-binding-group"
	KeySystemProperty     = "system-property"
	KeyServerGroup        = "server-group"
	KeyServerConfig       = "server-config"
	KeyDeployment         = "deployment"
	KeyHost               = "host"
	KeyGroup              = "group"
)

// HostResolver is the default resolution policy for the servers of one host.
type HostResolver struct {
	LocalHostName string
}

// NewHostResolver creates a HostResolver for the named host.
func NewHostResolver(localHostName string) *HostResolver {
	return &HostResolver{LocalHostName: localHostName}
}

type hostServer struct {
	id                 ServerIdentity
	profile            string
	socketBindingGroup string
}

// ServerOperations implements OperationResolver.
func (r *HostResolver) ServerOperations(op model.Node, addr address.PathAddress, domainModel, hostModel model.Node) (ServerOperations, error) {
	first, ok := firstElement(addr)
	if !ok {
		return ServerOperations{}, nil
	}

	var (
		servers   []hostServer
		rescoped  address.PathAddress
		err       error
		matchFunc func(hostServer) bool
	)

	switch first.Key {
	case KeyProfile:
		if addr.Len() == 1 {
			return ServerOperations{}, nil
		}
		rescoped = addr.SubAddress(1)
		matchFunc = func(s hostServer) bool { return s.profile == first.Value }

	case KeySocketBindingGroup:
		rescoped = addr
		matchFunc = func(s hostServer) bool { return s.socketBindingGroup == first.Value }

	case KeySystemProperty:
		if addr.Len() != 1 {
			return ServerOperations{}, nil
		}
		rescoped = addr
		matchFunc = func(hostServer) bool { return true }

	case KeyServerGroup:
		if addr.Len() < 2 {
			return ServerOperations{}, nil
		}
		second := addr.Element(1)
		if second.Key != KeyDeployment && second.Key != KeySystemProperty {
			return ServerOperations{}, nil
		}
		rescoped = addr.SubAddress(1)
		matchFunc = func(s hostServer) bool { return s.id.ServerGroupName == first.Value }

	case KeyHost:
		if first.Value != r.LocalHostName || addr.Len() < 2 {
			return ServerOperations{}, nil
		}
		second := addr.Element(1)
		switch {
		case second.Key == KeySystemProperty && addr.Len() == 2:
			rescoped = addr.SubAddress(1)
			matchFunc = func(hostServer) bool { return true }
		case second.Key == KeyServerConfig && addr.Len() == 3 && addr.Element(2).Key == KeySystemProperty:
			rescoped = addr.SubAddress(2)
			matchFunc = func(s hostServer) bool { return s.id.ServerName == second.Value }
		default:
			return ServerOperations{}, nil
		}

	default:
		return ServerOperations{}, nil
	}

	servers, err = r.hostServers(domainModel, hostModel)
	if err != nil {
		return nil, err
	}

	body := model.WithAddress(op, rescoped)
	grouper := NewGrouper()
	for _, s := range servers {
		if !matchFunc(s) {
			continue
		}
		if err := grouper.Add(s.id, body); err != nil {
			return nil, err
		}
	}

	slog.Debug(fmt.Sprintf("%s - %s %s resolved to %d servers", hostResolverLogPrefix, model.OperationName(op), addr, grouper.Len()))
	return grouper.Result(), nil
}

// PushToServers implements ServerPusher. The servers in scope of addr receive op at their
// root address: a server group's servers, one server-config, the servers using a profile or
// socket binding group, or every server of the host. Addresses of other hosts match nothing.
func (r *HostResolver) PushToServers(op model.Node, addr address.PathAddress, domainModel, hostModel model.Node) (ServerOperations, error) {
	matchFunc := func(hostServer) bool { return true }
	if first, ok := firstElement(addr); ok {
		switch first.Key {
		case KeyServerGroup:
			matchFunc = func(s hostServer) bool { return s.id.ServerGroupName == first.Value }
		case KeyProfile:
			matchFunc = func(s hostServer) bool { return s.profile == first.Value }
		case KeySocketBindingGroup:
			matchFunc = func(s hostServer) bool { return s.socketBindingGroup == first.Value }
		case KeyHost:
			if first.Value != r.LocalHostName {
				return ServerOperations{}, nil
			}
			if addr.Len() >= 2 && addr.Element(1).Key == KeyServerConfig {
				name := addr.Element(1).Value
				matchFunc = func(s hostServer) bool { return s.id.ServerName == name }
			}
		}
	}

	servers, err := r.hostServers(domainModel, hostModel)
	if err != nil {
		return nil, err
	}
	body := model.WithAddress(op, address.EmptyAddress)
	grouper := NewGrouper()
	for _, s := range servers {
		if !matchFunc(s) {
			continue
		}
		if err := grouper.Add(s.id, body); err != nil {
			return nil, err
		}
	}
	slog.Debug(fmt.Sprintf("%s - %s %s pushed to %d servers", hostResolverLogPrefix, model.OperationName(op), addr, grouper.Len()))
	return grouper.Result(), nil
}

// hostServers lists the servers configured on the host with their effective profile and
// socket binding group. A server whose group is not in the domain model fails the resolution.
func (r *HostResolver) hostServers(domainModel, hostModel model.Node) ([]hostServer, error) {
	configs, _ := model.Child(hostModel, KeyServerConfig)
	groups, _ := model.Child(domainModel, KeyServerGroup)

	out := make([]hostServer, 0, len(configs))
	for _, name := range model.Keys(configs) {
		cfg, _ := model.Child(configs, name)
		groupName, _ := model.String(cfg, KeyGroup)
		group, ok := model.Child(groups, groupName)
		if !ok {
			return nil, &ResolutionError{
				Code:    CodeResolutionFailed,
				Message: fmt.Sprintf("server %s on host %s references unknown server group %q", name, r.LocalHostName, groupName),
			}
		}
		profile, _ := model.String(group, KeyProfile)
		sbg, ok := model.String(cfg, KeySocketBindingGroup)
		if !ok {
			sbg, _ = model.String(group, KeySocketBindingGroup)
		}
		out = append(out, hostServer{
			id:                 ServerIdentity{HostName: r.LocalHostName, ServerGroupName: groupName, ServerName: name},
			profile:            profile,
			socketBindingGroup: sbg,
		})
	}
	return out, nil
}

func firstElement(addr address.PathAddress) (address.PathElement, bool) {
	if addr.IsEmpty() {
		return address.PathElement{}, false
	}
	return addr.Element(0), true
}
