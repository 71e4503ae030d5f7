package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/morezero/domain-controller/pkg/address"
)

func addr(t testing.TB, s string) address.PathAddress {
	t.Helper()
	a, err := address.Parse(s)
	if err != nil {
		t.Fatalf("registry:registry_test - bad address %q: %v", s, err)
	}
	return a
}

// namedHandler is comparable so lookups can be checked for identity.
type namedHandler struct{ name string }

func (h *namedHandler) Execute(_ context.Context, _ *Operation) (interface{}, error) {
	return h.name, nil
}

func registryCode(err error) string {
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return regErr.Code
	}
	return ""
}

func TestRegisterSubModel_CreateOrReturn(t *testing.T) {
	root := NewRootRegistration(nil)

	first, err := root.RegisterSubModel(addr(t, "/profile=default/subsystem=foo"), StaticDescription("foo"))
	require.NoError(t, err)
	second, err := root.RegisterSubModel(addr(t, "/profile=default/subsystem=foo"), nil)
	require.NoError(t, err)
	require.Same(t, first, second)

	_, err = root.RegisterSubModel(address.EmptyAddress, nil)
	require.Equal(t, CodeInvalidArgument, registryCode(err))

	_, err = root.RegisterSubModel(address.New(address.Element("bad/key", "x")), nil)
	require.Equal(t, CodeInvalidArgument, registryCode(err))
}

func TestRegisterSubModel_IntermediateGetsDescriptionLater(t *testing.T) {
	root := NewRootRegistration(nil)
	_, err := root.RegisterSubModel(addr(t, "/profile=default/subsystem=foo"), nil)
	require.NoError(t, err)

	_, ok := root.GetModelDescription(addr(t, "/profile=default"))
	require.False(t, ok)

	_, err = root.RegisterSubModel(addr(t, "/profile=default"), StaticDescription("profile"))
	require.NoError(t, err)
	desc, ok := root.GetModelDescription(addr(t, "/profile=default"))
	require.True(t, ok)
	require.Equal(t, "profile", desc.Describe("")["description"])
}

func TestRegisterOperationHandler_Duplicate(t *testing.T) {
	root := NewRootRegistration(nil)
	h := &namedHandler{name: "a"}
	require.NoError(t, root.RegisterOperationHandler("read-resource", h, nil, false, ReadOnly))

	err := root.RegisterOperationHandler("read-resource", h, nil, false)
	require.Equal(t, CodeDuplicateRegistration, registryCode(err))

	require.Equal(t, CodeInvalidArgument, registryCode(root.RegisterOperationHandler("", h, nil, false)))
	require.Equal(t, CodeInvalidArgument, registryCode(root.RegisterOperationHandler("x", nil, nil, false)))
}

func TestGetOperationHandler_Identity(t *testing.T) {
	root := NewRootRegistration(nil)
	foo, err := root.RegisterSubModel(addr(t, "/profile=default/subsystem=foo"), nil)
	require.NoError(t, err)

	h := &namedHandler{name: "set-attribute"}
	require.NoError(t, foo.RegisterOperationHandler("set-attribute", h, nil, false))

	got, ok := root.GetOperationHandler(addr(t, "/profile=default/subsystem=foo"), "set-attribute")
	require.True(t, ok)
	require.Same(t, h, got)

	_, ok = root.GetOperationHandler(addr(t, "/profile=default/subsystem=foo"), "other")
	require.False(t, ok)
	_, ok = root.GetOperationHandler(addr(t, "/profile=default/subsystem=bar"), "set-attribute")
	require.False(t, ok)
	_, ok = root.GetOperationHandler(addr(t, "/profile=default"), "set-attribute")
	require.False(t, ok, "operations are not visible on ancestors")
}

func TestInheritedFallback(t *testing.T) {
	root := NewRootRegistration(nil)
	a, err := root.RegisterSubModel(addr(t, "/a=1"), nil)
	require.NoError(t, err)
	_, err = root.RegisterSubModel(addr(t, "/a=1/b=2/c=3"), nil)
	require.NoError(t, err)
	_, err = root.RegisterSubModel(addr(t, "/x=1"), nil)
	require.NoError(t, err)

	inherited := &namedHandler{name: "inherited"}
	require.NoError(t, a.RegisterOperationHandler("describe", inherited, nil, true, ReadOnly))
	notInherited := &namedHandler{name: "local"}
	require.NoError(t, a.RegisterOperationHandler("local-only", notInherited, nil, false))

	got, ok := root.GetOperationHandler(addr(t, "/a=1/b=2/c=3"), "describe")
	require.True(t, ok)
	require.Same(t, inherited, got)
	require.True(t, root.GetOperationFlags(addr(t, "/a=1/b=2"), "describe").Has(ReadOnly))

	_, ok = root.GetOperationHandler(addr(t, "/a=1/b=2"), "local-only")
	require.False(t, ok)

	_, ok = root.GetOperationHandler(addr(t, "/x=1"), "describe")
	require.False(t, ok, "inherited entries must not leak into sibling subtrees")

	override := &namedHandler{name: "override"}
	c, _ := root.SubModel(addr(t, "/a=1/b=2/c=3"))
	require.NoError(t, c.RegisterOperationHandler("describe", override, nil, false))
	got, _ = root.GetOperationHandler(addr(t, "/a=1/b=2/c=3"), "describe")
	require.Same(t, override, got)
}

func TestGetOperationFlags_Unknown(t *testing.T) {
	root := NewRootRegistration(nil)
	flags := root.GetOperationFlags(addr(t, "/nope=1"), "whatever")
	require.NotNil(t, flags)
	require.Empty(t, flags)
}

func TestGetOperationFlags_ReturnsCopy(t *testing.T) {
	root := NewRootRegistration(nil)
	require.NoError(t, root.RegisterOperationHandler("read", &namedHandler{name: "read"}, nil, true, ReadOnly))

	flags := root.GetOperationFlags(address.EmptyAddress, "read")
	flags[Flag("X")] = struct{}{}
	entry, err := root.LookupOperation(address.EmptyAddress, "read")
	require.NoError(t, err)
	delete(entry.Flags, ReadOnly)

	require.Equal(t, []string{"READ_ONLY"}, root.GetOperationFlags(address.EmptyAddress, "read").List())
}

func TestLookupOperation_NotFound(t *testing.T) {
	root := NewRootRegistration(nil)
	_, err := root.RegisterSubModel(addr(t, "/a=1"), nil)
	require.NoError(t, err)

	_, err = root.LookupOperation(addr(t, "/a=1/b=2"), "add")
	require.Equal(t, CodeNotFound, registryCode(err))
	require.Contains(t, err.Error(), "/a=1/b=2")

	_, err = root.LookupOperation(addr(t, "/a=1"), "add")
	require.Equal(t, CodeNotFound, registryCode(err))
	require.Contains(t, err.Error(), `"add"`)
}

func TestProxySubModel(t *testing.T) {
	root := NewRootRegistration(nil)
	_, err := root.RegisterSubModel(addr(t, "/host=master"), nil)
	require.NoError(t, err)

	proxy := &namedHandler{name: "proxy"}
	require.NoError(t, root.RegisterProxySubModel(addr(t, "/host=slave"), proxy))

	got, ok := root.GetOperationHandler(addr(t, "/host=slave/server=one"), "read-resource")
	require.True(t, ok)
	require.Same(t, proxy, got)

	entry, err := root.LookupOperation(addr(t, "/host=slave"), "anything")
	require.NoError(t, err)
	require.True(t, entry.Proxied)
	require.Empty(t, entry.Flags)

	err = root.RegisterProxySubModel(addr(t, "/host=master"), proxy)
	require.Equal(t, CodeInvalidArgument, registryCode(err), "proxy must not shadow a concrete sub-model")

	err = root.RegisterProxySubModel(addr(t, "/host=slave"), proxy)
	require.Equal(t, CodeInvalidArgument, registryCode(err))

	_, err = root.RegisterSubModel(addr(t, "/host=slave/server=one"), nil)
	require.Equal(t, CodeInvalidArgument, registryCode(err), "sub-model must not be registered beneath a proxy")

	require.Nil(t, root.GetOperationDescriptions(addr(t, "/host=slave")))
	require.Nil(t, root.GetChildNames(addr(t, "/host=slave")))
}

func TestWildcardChild(t *testing.T) {
	root := NewRootRegistration(nil)
	wild, err := root.RegisterSubModel(addr(t, "/server-group=*"), nil)
	require.NoError(t, err)
	exact, err := root.RegisterSubModel(addr(t, "/server-group=special"), nil)
	require.NoError(t, err)

	generic := &namedHandler{name: "generic"}
	specific := &namedHandler{name: "specific"}
	require.NoError(t, wild.RegisterOperationHandler("add", generic, nil, false))
	require.NoError(t, exact.RegisterOperationHandler("add", specific, nil, false))

	got, ok := root.GetOperationHandler(addr(t, "/server-group=main"), "add")
	require.True(t, ok)
	require.Same(t, generic, got)

	got, ok = root.GetOperationHandler(addr(t, "/server-group=special"), "add")
	require.True(t, ok)
	require.Same(t, specific, got)
}

func TestLocationString(t *testing.T) {
	root := NewRootRegistration(nil)
	require.Equal(t, "", root.LocationString())

	// Siblings registered first must not affect the location.
	_, err := root.RegisterSubModel(addr(t, "/Z=9"), nil)
	require.NoError(t, err)
	_, err = root.RegisterSubModel(addr(t, "/A=1/C=3"), nil)
	require.NoError(t, err)

	b, err := root.RegisterSubModel(addr(t, "/A=1/B=2"), nil)
	require.NoError(t, err)
	require.Equal(t, "(A=1)(B=2)", b.LocationString())
	require.Equal(t, "/A=1/B=2", b.Address().String())
}

func TestDescriptionsAndNames(t *testing.T) {
	root := NewRootRegistration(StaticDescription("root"))
	require.NoError(t, root.RegisterOperationHandler("read-resource", &namedHandler{}, StaticDescription("reads"), true, ReadOnly))

	foo, err := root.RegisterSubModel(addr(t, "/subsystem=foo"), StaticDescription("foo subsystem"))
	require.NoError(t, err)
	require.NoError(t, foo.RegisterOperationHandler("add", &namedHandler{}, StaticDescription("adds"), false))
	require.NoError(t, foo.RegisterAttribute("bar", AttributeAccess{Description: "bar attr"}))
	require.NoError(t, foo.RegisterAttribute("alpha", AttributeAccess{Access: AccessReadOnly}))
	require.Equal(t, CodeDuplicateRegistration, registryCode(foo.RegisterAttribute("bar", AttributeAccess{})))
	_, err = root.RegisterSubModel(addr(t, "/subsystem=foo/handler=one"), nil)
	require.NoError(t, err)
	_, err = root.RegisterSubModel(addr(t, "/subsystem=foo/handler=two"), nil)
	require.NoError(t, err)
	_, err = root.RegisterSubModel(addr(t, "/subsystem=foo/filter=f"), nil)
	require.NoError(t, err)

	descs := root.GetOperationDescriptions(addr(t, "/subsystem=foo"))
	require.Len(t, descs, 2)
	require.Contains(t, descs, "read-resource")
	require.Contains(t, descs, "add")

	d, ok := root.GetOperationDescription(addr(t, "/subsystem=foo"), "read-resource")
	require.True(t, ok)
	require.Equal(t, "reads", d.Describe("")["description"])

	require.Equal(t, []string{"alpha", "bar"}, root.GetAttributeNames(addr(t, "/subsystem=foo")))
	access, ok := root.GetAttributeAccess(addr(t, "/subsystem=foo"), "bar")
	require.True(t, ok)
	require.Equal(t, AccessReadWrite, access.Access)
	require.Equal(t, []string{"filter", "handler"}, root.GetChildNames(addr(t, "/subsystem=foo")))

	out, err := root.Describe(addr(t, "/subsystem=foo"), "")
	require.NoError(t, err)
	require.Equal(t, "(subsystem=foo)", out.Location)
	require.Equal(t, "foo subsystem", out.Description["description"])
	require.Len(t, out.Operations, 2)
	require.Equal(t, "add", out.Operations[0].Name)
	require.Equal(t, []string{"READ_ONLY"}, out.Operations[1].Flags)
	require.True(t, out.Operations[1].Inherited)

	_, err = root.Describe(addr(t, "/subsystem=none"), "")
	require.Equal(t, CodeNotFound, registryCode(err))
}

func TestConcurrentRegistrationAndLookup(t *testing.T) {
	root := NewRootRegistration(nil)
	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a := address.New(address.Element("w", fmt.Sprint(w)), address.Element("i", fmt.Sprint(i)))
				node, err := root.RegisterSubModel(a, nil)
				if err != nil {
					t.Errorf("registry:registry_test - register: %v", err)
					return
				}
				if err := node.RegisterOperationHandler("op", &namedHandler{name: a.String()}, nil, false); err != nil {
					t.Errorf("registry:registry_test - register op: %v", err)
					return
				}
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a := address.New(address.Element("w", fmt.Sprint(w)), address.Element("i", fmt.Sprint(i)))
				// Either absent or complete, never half-built.
				if h, ok := root.GetOperationHandler(a, "op"); ok {
					if h.(*namedHandler).name != a.String() {
						t.Errorf("registry:registry_test - wrong handler at %s", a)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.Len(t, root.GetChildNames(address.New(address.Element("w", fmt.Sprint(w)))), 1)
	}
}

func TestRegistryRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		root := NewRootRegistration(nil)
		type registration struct {
			addr    address.PathAddress
			name    string
			handler *namedHandler
		}
		var registered []registration
		seen := map[string]bool{}

		n := rapid.IntRange(1, 20).Draw(r, "n")
		for i := 0; i < n; i++ {
			depth := rapid.IntRange(1, 4).Draw(r, "depth")
			elements := make([]address.PathElement, depth)
			for d := 0; d < depth; d++ {
				key := rapid.SampledFrom([]string{"profile", "subsystem", "server-group", "host"}).Draw(r, "key")
				value := rapid.StringMatching(`[a-z]{1,4}`).Draw(r, "value")
				elements[d] = address.Element(key, value)
			}
			a := address.New(elements...)
			name := rapid.SampledFrom([]string{"add", "remove", "write-attribute"}).Draw(r, "name")
			if seen[a.String()+"#"+name] {
				continue
			}
			seen[a.String()+"#"+name] = true

			node, err := root.RegisterSubModel(a, nil)
			if err != nil {
				r.Fatalf("register sub-model %s: %v", a, err)
			}
			h := &namedHandler{name: a.String() + "#" + name}
			if err := node.RegisterOperationHandler(name, h, nil, false); err != nil {
				r.Fatalf("register %s at %s: %v", name, a, err)
			}
			registered = append(registered, registration{addr: a, name: name, handler: h})
		}

		for _, reg := range registered {
			got, ok := root.GetOperationHandler(reg.addr, reg.name)
			if !ok {
				r.Fatalf("handler %s at %s not found", reg.name, reg.addr)
			}
			if got != OperationHandler(reg.handler) {
				r.Fatalf("handler %s at %s is not the registered instance", reg.name, reg.addr)
			}
		}
	})
}
