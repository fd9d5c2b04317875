package framegraph

import "strings"

// ResourceState describes how a resource is being used. States are bit flags
// so read-only usages can be combined (e.g. depth read while sampled).
type ResourceState uint32

const (
	// StateUndefined means no requirement; the resource keeps whatever state it has.
	StateUndefined              ResourceState = 0
	StateCommon                 ResourceState = 1 << 0
	StateRenderTarget           ResourceState = 1 << 1
	StateDepthWrite             ResourceState = 1 << 2
	StateDepthRead              ResourceState = 1 << 3
	StatePixelShaderResource    ResourceState = 1 << 4
	StateNonPixelShaderResource ResourceState = 1 << 5
	StateUnorderedAccess        ResourceState = 1 << 6
	StateCopySource             ResourceState = 1 << 7
	StateCopyDest               ResourceState = 1 << 8
	StatePresent                ResourceState = 1 << 9

	StateShaderResource = StatePixelShaderResource | StateNonPixelShaderResource
)

var stateNames = []struct {
	state ResourceState
	name  string
}{
	{StateCommon, "Common"},
	{StateRenderTarget, "RenderTarget"},
	{StateDepthWrite, "DepthWrite"},
	{StateDepthRead, "DepthRead"},
	{StatePixelShaderResource, "PixelShaderResource"},
	{StateNonPixelShaderResource, "NonPixelShaderResource"},
	{StateUnorderedAccess, "UnorderedAccess"},
	{StateCopySource, "CopySource"},
	{StateCopyDest, "CopyDest"},
	{StatePresent, "Present"},
}

func (s ResourceState) String() string {
	if s == StateUndefined {
		return "Undefined"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Writable reports whether the state allows the GPU to modify the resource.
func (s ResourceState) Writable() bool {
	return s&(StateRenderTarget|StateDepthWrite|StateUnorderedAccess|StateCopyDest) != 0
}
