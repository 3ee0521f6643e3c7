// This file adapts vala/vala.go's swapchain/shader/descriptor/pipeline
// setup (lines ~270-620) and its per-frame acquire/record/submit/present
// loop (lines ~1870-2230) into a single minimal pass: instead of
// compositing a stack of ECS-driven layers, it samples the residency
// core's AtlasTexture directly onto a fullscreen quad, so every resident
// page, its padding, and any still-empty atlas slot is visible on
// screen exactly as a real sampling shader would see it.
package gpu

import (
	"fmt"

	vk "github.com/NOT-REAL-GAMES/vtexcore/internal/vulkango"
	shaderc "github.com/NOT-REAL-GAMES/vtexcore/internal/vulkango/shaderc"
)

// atlasDebugVertexShader and atlasDebugFragmentShader draw the atlas
// texture as a fullscreen quad, adapted from vala/vala.go's
// compositeVertexShader/compositeFragmentShader pair (hardcoded
// position/texCoord arrays indexed by gl_VertexIndex, one combined
// image sampler) with the per-layer opacity push constant dropped: this
// view always shows the atlas at full opacity.
const atlasDebugVertexShader = `#version 450

vec2 positions[6] = vec2[](
    vec2(-1.0, -1.0),
    vec2( 1.0, -1.0),
    vec2( 1.0,  1.0),
    vec2(-1.0, -1.0),
    vec2( 1.0,  1.0),
    vec2(-1.0,  1.0)
);

vec2 texCoords[6] = vec2[](
    vec2(0.0, 0.0),
    vec2(1.0, 0.0),
    vec2(1.0, 1.0),
    vec2(0.0, 0.0),
    vec2(1.0, 1.0),
    vec2(0.0, 1.0)
);

layout(location = 0) out vec2 fragTexCoord;

void main() {
    gl_Position = vec4(positions[gl_VertexIndex], 0.0, 1.0);
    fragTexCoord = texCoords[gl_VertexIndex];
}
`

const atlasDebugFragmentShader = `#version 450

layout(location = 0) in vec2 fragTexCoord;
layout(binding = 0) uniform sampler2D atlasSampler;
layout(location = 0) out vec4 outColor;

void main() {
    outColor = texture(atlasSampler, fragTexCoord);
}
`

// AtlasPresenter owns a swapchain and a single graphics pipeline that
// blits an AtlasTexture straight to the window. It exists purely for
// visual debugging of residency and is not part of the residency
// core's contract: vtexcore.Manager never references it, cmd/vtexdemo
// drives it directly alongside manager.Frame.
type AtlasPresenter struct {
	target Target

	surface    vk.SurfaceKHR
	swapchain  vk.SwapchainKHR
	swapFormat vk.Format
	swapExtent vk.Extent2D
	swapImages []vk.Image
	swapViews  []vk.ImageView

	sampler             vk.Sampler
	descriptorSetLayout vk.DescriptorSetLayout
	descriptorPool      vk.DescriptorPool
	descriptorSet       vk.DescriptorSet
	pipelineLayout      vk.PipelineLayout
	pipeline            vk.Pipeline

	cmd            vk.CommandBuffer
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       vk.Fence
}

// NewAtlasPresenter builds a swapchain over surface sized width x
// height and a pipeline sampling atlasView, compiling its two shaders
// with shaderc the same way vala/vala.go compiles its composite pass.
func NewAtlasPresenter(target Target, surface vk.SurfaceKHR, width, height, graphicsFamily uint32, atlasView vk.ImageView) (*AtlasPresenter, error) {
	supported, err := target.PhysicalDevice.GetSurfaceSupportKHR(graphicsFamily, surface)
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to query surface support: %w", err)
	}
	if !supported {
		return nil, fmt.Errorf("gpu: graphics queue family %d cannot present to this surface", graphicsFamily)
	}

	swapchain, swapFormat, swapExtent, err := vk.CreateSwapchain(target.Device, target.PhysicalDevice, surface, width, height, graphicsFamily)
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create swapchain: %w", err)
	}

	swapImages, err := target.Device.GetSwapchainImagesKHR(swapchain)
	if err != nil {
		target.Device.DestroySwapchainKHR(swapchain)
		return nil, fmt.Errorf("gpu: failed to get swapchain images: %w", err)
	}

	swapViews, err := vk.CreateSwapchainImageViews(target.Device, swapImages, swapFormat)
	if err != nil {
		target.Device.DestroySwapchainKHR(swapchain)
		return nil, fmt.Errorf("gpu: failed to create swapchain image views: %w", err)
	}

	p := &AtlasPresenter{
		target:     target,
		surface:    surface,
		swapchain:  swapchain,
		swapFormat: swapFormat,
		swapExtent: swapExtent,
		swapImages: swapImages,
		swapViews:  swapViews,
	}

	if err := p.buildPipeline(atlasView); err != nil {
		p.destroySwapchain()
		return nil, err
	}

	cmdBuffers, err := target.Device.AllocateCommandBuffers(&vk.CommandBufferAllocateInfo{
		CommandPool:        target.CommandPool,
		Level:              vk.COMMAND_BUFFER_LEVEL_PRIMARY,
		CommandBufferCount: 1,
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpu: failed to allocate presenter command buffer: %w", err)
	}
	p.cmd = cmdBuffers[0]

	if p.imageAvailable, err = target.Device.CreateSemaphore(&vk.SemaphoreCreateInfo{}); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpu: failed to create image-available semaphore: %w", err)
	}
	if p.renderFinished, err = target.Device.CreateSemaphore(&vk.SemaphoreCreateInfo{}); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpu: failed to create render-finished semaphore: %w", err)
	}
	if p.inFlight, err = target.Device.CreateFence(&vk.FenceCreateInfo{Flags: vk.FENCE_CREATE_SIGNALED_BIT}); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpu: failed to create in-flight fence: %w", err)
	}

	return p, nil
}

func (p *AtlasPresenter) buildPipeline(atlasView vk.ImageView) error {
	device := p.target.Device

	compiler := shaderc.NewCompiler()
	defer compiler.Release()
	options := shaderc.NewCompileOptions()
	defer options.Release()
	options.SetTargetEnv(shaderc.TargetEnvVulkan, shaderc.EnvVersionVulkan_1_3)
	options.SetOptimizationLevel(shaderc.OptimizationLevelPerformance)

	vertResult, err := compiler.CompileIntoSPV(atlasDebugVertexShader, "atlasdebug.vert", shaderc.VertexShader, options)
	if err != nil {
		return fmt.Errorf("gpu: atlas debug vertex shader compilation failed: %w", err)
	}
	defer vertResult.Release()
	vertModule, err := device.CreateShaderModule(&vk.ShaderModuleCreateInfo{Code: vertResult.GetBytes()})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas debug vertex shader module: %w", err)
	}
	defer device.DestroyShaderModule(vertModule)

	fragResult, err := compiler.CompileIntoSPV(atlasDebugFragmentShader, "atlasdebug.frag", shaderc.FragmentShader, options)
	if err != nil {
		return fmt.Errorf("gpu: atlas debug fragment shader compilation failed: %w", err)
	}
	defer fragResult.Release()
	fragModule, err := device.CreateShaderModule(&vk.ShaderModuleCreateInfo{Code: fragResult.GetBytes()})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas debug fragment shader module: %w", err)
	}
	defer device.DestroyShaderModule(fragModule)

	sampler, err := device.CreateSampler(&vk.SamplerCreateInfo{
		MagFilter:    vk.FILTER_LINEAR,
		MinFilter:    vk.FILTER_LINEAR,
		MipmapMode:   vk.SAMPLER_MIPMAP_MODE_NEAREST,
		AddressModeU: vk.SAMPLER_ADDRESS_MODE_CLAMP_TO_EDGE,
		AddressModeV: vk.SAMPLER_ADDRESS_MODE_CLAMP_TO_EDGE,
		AddressModeW: vk.SAMPLER_ADDRESS_MODE_CLAMP_TO_EDGE,
		MinLod:       0,
		MaxLod:       0,
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas sampler: %w", err)
	}
	p.sampler = sampler

	setLayout, err := device.CreateDescriptorSetLayout(&vk.DescriptorSetLayoutCreateInfo{
		Bindings: []vk.DescriptorSetLayoutBinding{
			{Binding: 0, DescriptorType: vk.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, DescriptorCount: 1, StageFlags: vk.SHADER_STAGE_FRAGMENT_BIT},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas debug descriptor set layout: %w", err)
	}
	p.descriptorSetLayout = setLayout

	pool, err := device.CreateDescriptorPool(&vk.DescriptorPoolCreateInfo{
		MaxSets:   1,
		PoolSizes: []vk.DescriptorPoolSize{{Type: vk.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, DescriptorCount: 1}},
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas debug descriptor pool: %w", err)
	}
	p.descriptorPool = pool

	sets, err := device.AllocateDescriptorSets(&vk.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     []vk.DescriptorSetLayout{setLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to allocate atlas debug descriptor set: %w", err)
	}
	p.descriptorSet = sets[0]

	device.UpdateDescriptorSets([]vk.WriteDescriptorSet{
		{
			DstSet:         p.descriptorSet,
			DstBinding:     0,
			DescriptorType: vk.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER,
			ImageInfo: []vk.DescriptorImageInfo{
				{Sampler: sampler, ImageView: atlasView, ImageLayout: vk.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL},
			},
		},
	})

	layout, err := device.CreatePipelineLayout(&vk.PipelineLayoutCreateInfo{
		SetLayouts: []vk.DescriptorSetLayout{setLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas debug pipeline layout: %w", err)
	}
	p.pipelineLayout = layout

	pipeline, err := device.CreateGraphicsPipeline(&vk.GraphicsPipelineCreateInfo{
		Stages: []vk.PipelineShaderStageCreateInfo{
			{Stage: vk.SHADER_STAGE_VERTEX_BIT, Module: vertModule, Name: "main"},
			{Stage: vk.SHADER_STAGE_FRAGMENT_BIT, Module: fragModule, Name: "main"},
		},
		VertexInputState:   &vk.PipelineVertexInputStateCreateInfo{},
		InputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{Topology: vk.PRIMITIVE_TOPOLOGY_TRIANGLE_LIST},
		ViewportState:      &vk.PipelineViewportStateCreateInfo{Viewports: []vk.Viewport{{}}, Scissors: []vk.Rect2D{{}}},
		RasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			PolygonMode: vk.POLYGON_MODE_FILL,
			CullMode:    vk.CULL_MODE_NONE,
			FrontFace:   vk.FRONT_FACE_COUNTER_CLOCKWISE,
			LineWidth:   1.0,
		},
		MultisampleState: &vk.PipelineMultisampleStateCreateInfo{RasterizationSamples: vk.SAMPLE_COUNT_1_BIT},
		ColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			Attachments: []vk.PipelineColorBlendAttachmentState{{BlendEnable: false, ColorWriteMask: vk.COLOR_COMPONENT_ALL}},
		},
		DynamicState:  &vk.PipelineDynamicStateCreateInfo{DynamicStates: []vk.DynamicState{vk.DYNAMIC_STATE_VIEWPORT, vk.DYNAMIC_STATE_SCISSOR}},
		Layout:        layout,
		RenderingInfo: &vk.PipelineRenderingCreateInfo{ColorAttachmentFormats: []vk.Format{p.swapFormat}},
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to create atlas debug pipeline: %w", err)
	}
	p.pipeline = pipeline

	return nil
}

// RenderFrame draws the atlas as a fullscreen quad and presents it.
func (p *AtlasPresenter) RenderFrame() error {
	device := p.target.Device

	if err := device.WaitForFences([]vk.Fence{p.inFlight}, true, ^uint64(0)); err != nil {
		return fmt.Errorf("gpu: wait for presenter fence: %w", err)
	}
	if err := device.ResetFences([]vk.Fence{p.inFlight}); err != nil {
		return fmt.Errorf("gpu: reset presenter fence: %w", err)
	}

	imageIndex, err := device.AcquireNextImageKHR(p.swapchain, ^uint64(0), p.imageAvailable, vk.Fence{})
	if err != nil {
		return fmt.Errorf("gpu: acquire next swapchain image: %w", err)
	}

	cmd := p.cmd
	if err := cmd.Reset(0); err != nil {
		return fmt.Errorf("gpu: reset presenter command buffer: %w", err)
	}
	if err := cmd.Begin(&vk.CommandBufferBeginInfo{Flags: vk.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT}); err != nil {
		return fmt.Errorf("gpu: begin presenter command buffer: %w", err)
	}

	image := p.swapImages[imageIndex]
	subresource := vk.ImageSubresourceRange{AspectMask: vk.IMAGE_ASPECT_COLOR_BIT, BaseMipLevel: 0, LevelCount: 1, BaseArrayLayer: 0, LayerCount: 1}

	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, vk.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT, 0, []vk.ImageMemoryBarrier{
		{
			SrcAccessMask:       vk.ACCESS_NONE,
			DstAccessMask:       vk.ACCESS_COLOR_ATTACHMENT_WRITE_BIT,
			OldLayout:           vk.IMAGE_LAYOUT_UNDEFINED,
			NewLayout:           vk.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
			SrcQueueFamilyIndex: ^uint32(0),
			DstQueueFamilyIndex: ^uint32(0),
			Image:               image,
			SubresourceRange:    subresource,
		},
	})

	cmd.BeginRendering(&vk.RenderingInfo{
		RenderArea: vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: p.swapExtent},
		LayerCount: 1,
		ColorAttachments: []vk.RenderingAttachmentInfo{
			{
				ImageView:   p.swapViews[imageIndex],
				ImageLayout: vk.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
				LoadOp:      vk.ATTACHMENT_LOAD_OP_CLEAR,
				StoreOp:     vk.ATTACHMENT_STORE_OP_STORE,
				ClearValue:  vk.ClearValue{Color: vk.ClearColorValue{Float32: [4]float32{0, 0, 0, 1}}},
			},
		},
	})

	cmd.BindPipeline(vk.PIPELINE_BIND_POINT_GRAPHICS, p.pipeline)
	cmd.SetViewport(0, []vk.Viewport{{X: 0, Y: 0, Width: float32(p.swapExtent.Width), Height: float32(p.swapExtent.Height), MinDepth: 0, MaxDepth: 1}})
	cmd.SetScissor(0, []vk.Rect2D{{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: p.swapExtent}})
	cmd.BindDescriptorSets(vk.PIPELINE_BIND_POINT_GRAPHICS, p.pipelineLayout, 0, []vk.DescriptorSet{p.descriptorSet}, nil)
	cmd.Draw(6, 1, 0, 0)
	cmd.EndRendering()

	cmd.PipelineBarrier(vk.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT, vk.PIPELINE_STAGE_BOTTOM_OF_PIPE_BIT, 0, []vk.ImageMemoryBarrier{
		{
			SrcAccessMask:       vk.ACCESS_COLOR_ATTACHMENT_WRITE_BIT,
			DstAccessMask:       vk.ACCESS_NONE,
			OldLayout:           vk.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
			NewLayout:           vk.IMAGE_LAYOUT_PRESENT_SRC_KHR,
			SrcQueueFamilyIndex: ^uint32(0),
			DstQueueFamilyIndex: ^uint32(0),
			Image:               image,
			SubresourceRange:    subresource,
		},
	})

	if err := cmd.End(); err != nil {
		return fmt.Errorf("gpu: end presenter command buffer: %w", err)
	}

	if err := p.target.Queue.Submit([]vk.SubmitInfo{
		{
			WaitSemaphores:   []vk.Semaphore{p.imageAvailable},
			WaitDstStageMask: []vk.PipelineStageFlags{vk.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT},
			CommandBuffers:   []vk.CommandBuffer{cmd},
			SignalSemaphores: []vk.Semaphore{p.renderFinished},
		},
	}, p.inFlight); err != nil {
		return fmt.Errorf("gpu: submit presenter frame: %w", err)
	}

	if err := p.target.Queue.PresentKHR(&vk.PresentInfoKHR{
		WaitSemaphores: []vk.Semaphore{p.renderFinished},
		Swapchains:     []vk.SwapchainKHR{p.swapchain},
		ImageIndices:   []uint32{imageIndex},
	}); err != nil {
		return fmt.Errorf("gpu: present: %w", err)
	}

	return nil
}

// Destroy releases every GPU resource the presenter owns. The surface
// itself is not destroyed here: like vala/vala.go, this package never
// calls vkDestroySurfaceKHR (the binding in internal/vulkango does not
// expose it) and relies on instance/process teardown.
func (p *AtlasPresenter) Destroy() {
	device := p.target.Device
	_ = device.WaitIdle()

	device.DestroyFence(p.inFlight)
	device.DestroySemaphore(p.renderFinished)
	device.DestroySemaphore(p.imageAvailable)
	device.DestroyPipeline(p.pipeline)
	device.DestroyPipelineLayout(p.pipelineLayout)
	device.DestroyDescriptorPool(p.descriptorPool)
	device.DestroyDescriptorSetLayout(p.descriptorSetLayout)
	device.DestroySampler(p.sampler)
	p.destroySwapchain()
}

func (p *AtlasPresenter) destroySwapchain() {
	for _, view := range p.swapViews {
		p.target.Device.DestroyImageView(view)
	}
	p.target.Device.DestroySwapchainKHR(p.swapchain)
}

// ClearAtlas fills an atlas image with a flat debug color via
// vkCmdClearColorImage, before any page upload has happened, so unfilled
// slots read as a distinct color rather than whatever garbage memory the
// image allocation happened to contain.
func ClearAtlas(target Target, image vk.Image, color [4]float32) error {
	cmdBuffers, err := target.Device.AllocateCommandBuffers(&vk.CommandBufferAllocateInfo{
		CommandPool:        target.CommandPool,
		Level:              vk.COMMAND_BUFFER_LEVEL_PRIMARY,
		CommandBufferCount: 1,
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to allocate clear command buffer: %w", err)
	}
	cmd := cmdBuffers[0]
	defer target.Device.FreeCommandBuffers(target.CommandPool, cmdBuffers)

	if err := cmd.Begin(&vk.CommandBufferBeginInfo{Flags: vk.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT}); err != nil {
		return fmt.Errorf("gpu: failed to begin clear command buffer: %w", err)
	}

	subresource := vk.ImageSubresourceRange{AspectMask: vk.IMAGE_ASPECT_COLOR_BIT, BaseMipLevel: 0, LevelCount: 1, BaseArrayLayer: 0, LayerCount: 1}

	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, vk.PIPELINE_STAGE_TRANSFER_BIT, 0, []vk.ImageMemoryBarrier{
		{
			SrcAccessMask:       0,
			DstAccessMask:       vk.ACCESS_TRANSFER_WRITE_BIT,
			OldLayout:           vk.IMAGE_LAYOUT_UNDEFINED,
			NewLayout:           vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
			SrcQueueFamilyIndex: ^uint32(0),
			DstQueueFamilyIndex: ^uint32(0),
			Image:               image,
			SubresourceRange:    subresource,
		},
	})

	cmd.CmdClearColorImage(image, vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, &vk.ClearColorValue{Float32: color}, []vk.ImageSubresourceRange{subresource})

	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TRANSFER_BIT, vk.PIPELINE_STAGE_FRAGMENT_SHADER_BIT, 0, []vk.ImageMemoryBarrier{
		{
			SrcAccessMask:       vk.ACCESS_TRANSFER_WRITE_BIT,
			DstAccessMask:       vk.ACCESS_SHADER_READ_BIT,
			OldLayout:           vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
			NewLayout:           vk.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
			SrcQueueFamilyIndex: ^uint32(0),
			DstQueueFamilyIndex: ^uint32(0),
			Image:               image,
			SubresourceRange:    subresource,
		},
	})

	if err := cmd.End(); err != nil {
		return fmt.Errorf("gpu: failed to end clear command buffer: %w", err)
	}

	if err := target.Queue.Submit([]vk.SubmitInfo{{CommandBuffers: []vk.CommandBuffer{cmd}}}, vk.Fence{}); err != nil {
		return fmt.Errorf("gpu: failed to submit clear: %w", err)
	}
	return target.Queue.WaitIdle()
}
