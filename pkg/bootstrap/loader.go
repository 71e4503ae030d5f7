package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// LoadBootstrapConfig loads the resource layout from file paths or environment.
// It tries paths in order: first any paths passed in, then DOMAIN_LAYOUT_FILE, then defaults.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON. When no file
// can be read, the default layout is returned.
func LoadBootstrapConfig(paths ...string) (*BootstrapConfig, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("DOMAIN_LAYOUT_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/layout.yaml", "layout.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cfg, err := ParseBootstrapConfig(p, data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse layout file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded layout from %s", logPrefix, p))
		return MergeBootstrapConfigs(GetDefaultBootstrapConfig(), cfg), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default layout", logPrefix))
	return GetDefaultBootstrapConfig(), nil
}

// ParseBootstrapConfig decodes a layout file; the format follows the file extension.
func ParseBootstrapConfig(path string, data []byte) (*BootstrapConfig, error) {
	var cfg BootstrapConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func leaf(desc string, attrs map[string]AttributeSpec) ResourceSpec {
	return ResourceSpec{Description: desc, Attributes: attrs}
}

// GetDefaultBootstrapConfig returns the built-in domain layout.
func GetDefaultBootstrapConfig() *BootstrapConfig {
	value := map[string]AttributeSpec{
		"value":     {Access: "read-write", Description: "The property value"},
		"boot-time": {Access: "read-write", Description: "Whether the property is set at boot", Default: true},
	}
	deployment := map[string]AttributeSpec{
		"runtime-name": {Access: "read-only", Description: "Runtime name of the deployment"},
		"enabled":      {Access: "read-write", Description: "Whether the deployment is enabled", Default: false},
	}

	return &BootstrapConfig{
		Name:        "domain-layout",
		Version:     "1.0.0",
		Description: "Default managed domain layout",
		Root: ResourceSpec{
			Description: "The root of the managed domain",
			Attributes: map[string]AttributeSpec{
				"name":               {Access: "read-write", Description: "Name of the domain"},
				"management-version": {Access: "read-only", Description: "Management API version"},
			},
			Operations: map[string]OperationSpec{
				"upload-deployment-bytes": {
					Description: "Store deployment content in the domain repository",
					Flags:       []string{"DEPLOYMENT_UPLOAD", "HOST_CONTROLLER_ONLY"},
				},
			},
			Children: map[string]ResourceSpec{
				"system-property=*": leaf("A system property applied to every server", value),
				"path=*": leaf("A named filesystem path", map[string]AttributeSpec{
					"path":        {Access: "read-write", Description: "The path"},
					"relative-to": {Access: "read-write", Description: "Path this path is relative to"},
				}),
				"interface=*": leaf("A named network interface", map[string]AttributeSpec{
					"inet-address": {Access: "read-write", Description: "Bound address"},
				}),
				"deployment=*": leaf("Deployment content known to the domain", deployment),
				"profile=*": {
					Description: "A named set of subsystem configurations",
					Children: map[string]ResourceSpec{
						"subsystem=*": leaf("A subsystem configuration", nil),
					},
				},
				"socket-binding-group=*": {
					Description: "A named set of socket bindings",
					Attributes: map[string]AttributeSpec{
						"default-interface": {Access: "read-write", Description: "Interface used by bindings"},
					},
					Children: map[string]ResourceSpec{
						"socket-binding=*": leaf("A socket binding", map[string]AttributeSpec{
							"port": {Access: "read-write", Description: "Port number"},
						}),
					},
				},
				"server-group=*": {
					Description: "A group of servers sharing a profile",
					Attributes: map[string]AttributeSpec{
						"profile":              {Access: "read-write", Description: "Profile used by the group"},
						"socket-binding-group": {Access: "read-write", Description: "Socket binding group used by the group"},
					},
					Operations: map[string]OperationSpec{
						"restart-servers": {
							Description: "Restart every server of the group",
							Flags:       []string{"DOMAIN_PUSH_TO_SERVERS"},
						},
					},
					Children: map[string]ResourceSpec{
						"deployment=*":      leaf("A deployment assigned to the group", deployment),
						"system-property=*": leaf("A system property applied to the group's servers", value),
					},
				},
				"host=*": {
					Description: "A host managed by a host controller",
					Attributes: map[string]AttributeSpec{
						"master": {Access: "read-only", Description: "Whether this host runs the domain controller", Default: false},
					},
					Operations: map[string]OperationSpec{
						"reload": {
							Description: "Reload the host controller",
							Flags:       []string{"HOST_CONTROLLER_ONLY"},
						},
					},
					Children: map[string]ResourceSpec{
						"system-property=*": leaf("A system property applied to the host's servers", value),
						"server-config=*": {
							Description: "A server managed by the host controller",
							Attributes: map[string]AttributeSpec{
								"group":                {Access: "read-write", Description: "Server group of the server"},
								"socket-binding-group": {Access: "read-write", Description: "Socket binding group override"},
								"auto-start":           {Access: "read-write", Description: "Start with the host", Default: true},
							},
							Children: map[string]ResourceSpec{
								"system-property=*": leaf("A system property applied to one server", value),
							},
						},
					},
				},
			},
		},
	}
}

// MergeBootstrapConfigs merges an override layout into a base layout. Override attributes,
// operations and children replace or extend the base at the same position.
func MergeBootstrapConfigs(base, override *BootstrapConfig) *BootstrapConfig {
	merged := *base
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	merged.Root = mergeSpecs(base.Root, override.Root)
	return &merged
}

func mergeSpecs(base, override ResourceSpec) ResourceSpec {
	out := ResourceSpec{Description: base.Description}
	if override.Description != "" {
		out.Description = override.Description
	}

	if len(base.Attributes)+len(override.Attributes) > 0 {
		out.Attributes = make(map[string]AttributeSpec, len(base.Attributes)+len(override.Attributes))
		for k, v := range base.Attributes {
			out.Attributes[k] = v
		}
		for k, v := range override.Attributes {
			out.Attributes[k] = v
		}
	}

	if len(base.Operations)+len(override.Operations) > 0 {
		out.Operations = make(map[string]OperationSpec, len(base.Operations)+len(override.Operations))
		for k, v := range base.Operations {
			out.Operations[k] = v
		}
		for k, v := range override.Operations {
			out.Operations[k] = v
		}
	}

	if len(base.Children)+len(override.Children) > 0 {
		out.Children = make(map[string]ResourceSpec, len(base.Children)+len(override.Children))
		for k, v := range base.Children {
			out.Children[k] = v
		}
		for k, v := range override.Children {
			if existing, ok := out.Children[k]; ok {
				out.Children[k] = mergeSpecs(existing, v)
			} else {
				out.Children[k] = v
			}
		}
	}
	return out
}
