package pipeline

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/views"
)

// GraphName names the standard deferred graph.
const GraphName = "Std Pipeline"

// Nodes are the resources and passes of the standard graph.
type Nodes struct {
	GBuffer         [3]framegraph.ResourceID
	DeferLighted    framegraph.ResourceID
	DeferLightedSky framegraph.ResourceID
	Scene           framegraph.ResourceID
	Present         framegraph.ResourceID
	DeferDepth      framegraph.ResourceID
	ForwardDepth    framegraph.ResourceID
	Irradiance      framegraph.ResourceID
	PreFilter       framegraph.ResourceID

	GBufferPass       framegraph.PassID
	IBLPass           framegraph.PassID
	DeferLightingPass framegraph.PassID
	SkyboxPass        framegraph.PassID
	ForwardPass       framegraph.PassID
	PostProcessPass   framegraph.PassID
}

// Imports are the externally owned resources of one frame.
type Imports struct {
	Present       framegraph.Handle
	PresentFormat gputypes.TextureFormat
	Irradiance    framegraph.Handle
	PreFilter     framegraph.Handle
}

func colorTarget(width, height uint32) framegraph.TextureDesc {
	return framegraph.Texture2D(width, height, views.ColorFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding).
		WithClearColor([4]float32{0, 0, 0, 1})
}

func depthTarget(width, height uint32) framegraph.TextureDesc {
	return framegraph.Texture2D(width, height, views.DepthFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding).
		WithClearDepth(1, 0)
}

// IrradianceDesc and PreFilterDesc describe the per-slot IBL maps.
func IrradianceDesc() framegraph.TextureDesc {
	return framegraph.TextureCube(views.IrradianceMapSize, 1, views.ColorFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)
}

func PreFilterDesc() framegraph.TextureDesc {
	return framegraph.TextureCube(views.PreFilterMapSize, views.PreFilterMapMipLevels, views.ColorFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)
}

/**
 * @brief Declares the deferred topology into g and its resource data into
 * reg. Both are expected to be empty.
 *
 * GBuffer Pass writes three color targets and depth, IBL renders the
 * irradiance and prefilter maps, Defer Lighting resolves the GBuffer, Skybox
 * draws behind it, Forward draws transparent and unlit objects and Post
 * Process writes the presented image. The lit color is moved from
 * "Defer Lighted" to "Defer Lighted with Sky" to "Scene", and the depth
 * buffer from "Defer Depth Stencil" to "Forward Depth Stencil".
 */
func BuildStdGraph(g *framegraph.Graph, reg *framegraph.Registry, width, height uint32, imports Imports) Nodes {
	var n Nodes
	n.GBuffer[0] = g.RegisterResourceNode("GBuffer0")
	n.GBuffer[1] = g.RegisterResourceNode("GBuffer1")
	n.GBuffer[2] = g.RegisterResourceNode("GBuffer2")
	n.DeferLighted = g.RegisterResourceNode("Defer Lighted")
	n.DeferLightedSky = g.RegisterResourceNode("Defer Lighted with Sky")
	n.Scene = g.RegisterResourceNode("Scene")
	n.Present = g.RegisterResourceNode("Present")
	g.RegisterMoveNode(n.DeferLightedSky, n.DeferLighted)
	g.RegisterMoveNode(n.Scene, n.DeferLightedSky)
	n.DeferDepth = g.RegisterResourceNode("Defer Depth Stencil")
	n.ForwardDepth = g.RegisterResourceNode("Forward Depth Stencil")
	g.RegisterMoveNode(n.ForwardDepth, n.DeferDepth)
	n.Irradiance = g.RegisterResourceNode("Irradiance Map")
	n.PreFilter = g.RegisterResourceNode("PreFilter Map")

	gb := n.GBuffer
	n.GBufferPass = g.RegisterPassNode("GBuffer Pass",
		nil,
		[]framegraph.ResourceID{gb[0], gb[1], gb[2], n.DeferDepth})
	n.IBLPass = g.RegisterPassNode("IBL",
		nil,
		[]framegraph.ResourceID{n.Irradiance, n.PreFilter})
	n.DeferLightingPass = g.RegisterPassNode("Defer Lighting",
		[]framegraph.ResourceID{gb[0], gb[1], gb[2], n.DeferDepth, n.Irradiance, n.PreFilter},
		[]framegraph.ResourceID{n.DeferLighted})
	n.SkyboxPass = g.RegisterPassNode("Skybox",
		[]framegraph.ResourceID{n.DeferDepth},
		[]framegraph.ResourceID{n.DeferLightedSky})
	n.ForwardPass = g.RegisterPassNode("Forward",
		[]framegraph.ResourceID{n.Irradiance, n.PreFilter},
		[]framegraph.ResourceID{n.ForwardDepth, n.Scene})
	n.PostProcessPass = g.RegisterPassNode("Post Process",
		[]framegraph.ResourceID{n.Scene},
		[]framegraph.ResourceID{n.Present})

	rt := colorTarget(width, height)
	srv := framegraph.ShaderResourceView(views.ColorFormat)
	rtv := framegraph.RenderTargetView(views.ColorFormat)
	dsv := framegraph.DepthStencilView(views.DepthFormat)
	dsvRead := framegraph.DepthStencilReadOnlyView(views.DepthFormat)
	dsSrv := framegraph.DepthShaderResourceView(views.DepthFormat)
	cubeSrv := framegraph.CubeShaderResourceView(views.ColorFormat)

	presentFormat := imports.PresentFormat
	if presentFormat == gputypes.TextureFormatUndefined {
		presentFormat = gputypes.TextureFormatRGBA8Unorm
	}
	presentDesc := framegraph.Texture2D(width, height, presentFormat, gputypes.TextureUsageRenderAttachment)

	reg.RegisterTemporal(gb[0], rt).
		RegisterTemporal(gb[1], rt).
		RegisterTemporal(gb[2], rt).
		RegisterTemporal(n.DeferDepth, depthTarget(width, height)).
		RegisterTemporal(n.DeferLighted, rt).
		RegisterImportedWithDesc(n.Present, imports.Present, framegraph.StatePresent, presentDesc).
		RegisterImportedWithDesc(n.Irradiance, imports.Irradiance, framegraph.StatePixelShaderResource, IrradianceDesc()).
		RegisterImportedWithDesc(n.PreFilter, imports.PreFilter, framegraph.StatePixelShaderResource, PreFilterDesc())

	reg.RegisterPassResource(n.GBufferPass, gb[0], framegraph.StateRenderTarget, rtv).
		RegisterPassResource(n.GBufferPass, gb[1], framegraph.StateRenderTarget, rtv).
		RegisterPassResource(n.GBufferPass, gb[2], framegraph.StateRenderTarget, rtv).
		RegisterPassResource(n.GBufferPass, n.DeferDepth, framegraph.StateDepthWrite, dsv)

	reg.RegisterPassResource(n.IBLPass, n.Irradiance, framegraph.StateRenderTarget, views.IrradianceViews()...).
		RegisterPassResource(n.IBLPass, n.PreFilter, framegraph.StateRenderTarget, views.PreFilterViews()...)

	reg.RegisterPassResource(n.DeferLightingPass, gb[0], framegraph.StatePixelShaderResource, srv).
		RegisterPassResource(n.DeferLightingPass, gb[1], framegraph.StatePixelShaderResource, srv).
		RegisterPassResource(n.DeferLightingPass, gb[2], framegraph.StatePixelShaderResource, srv).
		RegisterPassResource(n.DeferLightingPass, n.DeferDepth, framegraph.StatePixelShaderResource|framegraph.StateDepthRead, dsvRead, dsSrv).
		RegisterPassResource(n.DeferLightingPass, n.Irradiance, framegraph.StatePixelShaderResource, cubeSrv).
		RegisterPassResource(n.DeferLightingPass, n.PreFilter, framegraph.StatePixelShaderResource, cubeSrv).
		RegisterPassResource(n.DeferLightingPass, n.DeferLighted, framegraph.StateRenderTarget, rtv)

	reg.RegisterPassResource(n.SkyboxPass, n.DeferDepth, framegraph.StateDepthRead, dsvRead).
		RegisterPassResource(n.SkyboxPass, n.DeferLightedSky, framegraph.StateRenderTarget, rtv)

	reg.RegisterPassResource(n.ForwardPass, n.ForwardDepth, framegraph.StateDepthWrite, dsv).
		RegisterPassResource(n.ForwardPass, n.Scene, framegraph.StateRenderTarget, rtv).
		RegisterPassResource(n.ForwardPass, n.Irradiance, framegraph.StatePixelShaderResource, cubeSrv).
		RegisterPassResource(n.ForwardPass, n.PreFilter, framegraph.StatePixelShaderResource, cubeSrv)

	reg.RegisterPassResource(n.PostProcessPass, n.Scene, framegraph.StatePixelShaderResource, srv).
		RegisterPassResource(n.PostProcessPass, n.Present, framegraph.StateRenderTarget, framegraph.RenderTargetView(presentFormat))
	return n
}
