package bootstrap

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/domain"
	"github.com/morezero/domain-controller/pkg/registry"
)

const registerLogPrefix = "bootstrap:register"

// Register registers the standard operations on root and then the resource types of cfg,
// depth first.
func Register(root *registry.NodeRegistration, cfg *BootstrapConfig) error {
	if cfg == nil {
		cfg = GetDefaultBootstrapConfig()
	}
	if err := registerStandardOperations(root); err != nil {
		return fmt.Errorf("%s - standard operations: %w", registerLogPrefix, err)
	}
	if err := registerSpec(root, cfg.Root); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Registered layout %s (%d resource types)", registerLogPrefix, cfg.Name, cfg.Root.CountResources()))
	return nil
}

// NewRoot creates a root registration described by cfg and registers cfg on it.
func NewRoot(cfg *BootstrapConfig) (*registry.NodeRegistration, error) {
	if cfg == nil {
		cfg = GetDefaultBootstrapConfig()
	}
	root := registry.NewRootRegistration(registry.StaticDescription(cfg.Root.Description))
	if err := Register(root, cfg); err != nil {
		return nil, err
	}
	return root, nil
}

func registerSpec(node *registry.NodeRegistration, spec ResourceSpec) error {
	addr := node.Address()
	for _, name := range sortedKeys(spec.Attributes) {
		attr := spec.Attributes[name]
		access, err := parseAccess(attr.Access)
		if err != nil {
			return fmt.Errorf("%s - %s attribute %s: %w", registerLogPrefix, addr, name, err)
		}
		if err := node.RegisterAttribute(name, registry.AttributeAccess{
			Access:      access,
			Description: attr.Description,
			Default:     attr.Default,
		}); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(spec.Operations) {
		opSpec := spec.Operations[name]
		flags, err := ParseFlags(opSpec.Flags)
		if err != nil {
			return fmt.Errorf("%s - %s operation %s: %w", registerLogPrefix, addr, name, err)
		}
		if err := node.RegisterOperationHandler(name, registry.OperationHandlerFunc(acknowledge),
			registry.StaticDescription(opSpec.Description), false, flags...); err != nil {
			return err
		}
	}

	for _, key := range sortedKeys(spec.Children) {
		child := spec.Children[key]
		e, err := parseElement(key)
		if err != nil {
			return fmt.Errorf("%s - %s child %q: %w", registerLogPrefix, addr, key, err)
		}
		childNode, err := node.RegisterSubModel(address.New(e), registry.StaticDescription(child.Description))
		if err != nil {
			return err
		}
		if err := registerSpec(childNode, child); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRemoteHosts registers one proxy sub-model per remote host at host=<name>. Lookups
// below a proxied host answer with the proxy instead of the layout's host=* entries.
func RegisterRemoteHosts(root *registry.NodeRegistration, proxies map[string]registry.OperationHandler) error {
	names := make([]string, 0, len(proxies))
	for name := range proxies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		addr := address.New(address.Element(domain.KeyHost, name))
		if err := root.RegisterProxySubModel(addr, proxies[name]); err != nil {
			return fmt.Errorf("%s - proxy for host %s: %w", registerLogPrefix, name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Registered proxy for host %s", registerLogPrefix, name))
	}
	return nil
}

// ParseFlags converts flag names to registry flags. Unknown names are rejected.
func ParseFlags(names []string) ([]registry.Flag, error) {
	flags := make([]registry.Flag, 0, len(names))
	for _, name := range names {
		switch f := registry.Flag(name); f {
		case registry.ReadOnly, registry.DeploymentUpload, registry.DomainPushToServers, registry.HostControllerOnly:
			flags = append(flags, f)
		default:
			return nil, fmt.Errorf("unknown flag %q", name)
		}
	}
	return flags, nil
}

func parseAccess(s string) (registry.AccessType, error) {
	switch registry.AccessType(s) {
	case "", registry.AccessReadWrite:
		return registry.AccessReadWrite, nil
	case registry.AccessReadOnly:
		return registry.AccessReadOnly, nil
	case registry.AccessMetric:
		return registry.AccessMetric, nil
	}
	return "", fmt.Errorf("unknown access type %q", s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
