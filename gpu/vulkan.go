// Package gpu wires the CPU-side atlas and page tables (packages atlas
// and vtexcore) to real GPU resources using the Vulkan bindings in
// internal/vulkango. This is the external collaborator seam:
// the residency core never calls into this package directly, it only
// implements the interfaces (atlas.GPUUpload, vtexcore.GPUSync) that
// this package's types satisfy.
//
// The staging-buffer-then-copy sequence below is adapted directly from
// vala/canvas/dense.go's Upload method: allocate a host-visible staging
// buffer, copy CPU pixels into it, record a one-shot command buffer that
// transitions the destination image, copies the buffer into it, and
// transitions it back to a shader-readable layout, then submit and
// block on WaitIdle. The only things that change per call site are the
// destination image, mip level and image format.
package gpu

import (
	"fmt"

	vk "github.com/NOT-REAL-GAMES/vtexcore/internal/vulkango"
)

// Target bundles the device handles every upload in this package needs.
// It is held by value by AtlasTexture and PageTableTexture.
type Target struct {
	Device         vk.Device
	PhysicalDevice vk.PhysicalDevice
	CommandPool    vk.CommandPool
	Queue          vk.Queue
}

// AtlasTexture is a single dense RGBA8 Vulkan image backing the CPU-side
// atlas.Atlas. It implements atlas.GPUUpload.
type AtlasTexture struct {
	target Target
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	size   uint32
}

// NewAtlasTexture allocates a size x size RGBA8 image usable as a
// transfer destination and a sampled texture, mirroring
// vala/canvas/dense.go's NewDenseCanvas.
func NewAtlasTexture(target Target, size uint32) (*AtlasTexture, error) {
	image, memory, err := target.Device.CreateImageWithMemory(
		size, size,
		vk.FORMAT_R8G8B8A8_UNORM,
		vk.IMAGE_TILING_OPTIMAL,
		vk.IMAGE_USAGE_TRANSFER_DST_BIT|vk.IMAGE_USAGE_SAMPLED_BIT,
		vk.MEMORY_PROPERTY_DEVICE_LOCAL_BIT,
		target.PhysicalDevice,
	)
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create atlas image: %w", err)
	}

	view, err := target.Device.CreateImageViewForTexture(image, vk.FORMAT_R8G8B8A8_UNORM)
	if err != nil {
		target.Device.FreeMemory(memory)
		target.Device.DestroyImage(image)
		return nil, fmt.Errorf("gpu: failed to create atlas image view: %w", err)
	}

	// Debug-clear to magenta before any page ever lands in it, so an
	// atlas slot that has not yet received a real upload is visually
	// distinguishable from one holding actual page content.
	if err := ClearAtlas(target, image, [4]float32{1, 0, 1, 1}); err != nil {
		target.Device.DestroyImageView(view)
		target.Device.FreeMemory(memory)
		target.Device.DestroyImage(image)
		return nil, fmt.Errorf("gpu: failed to clear atlas image: %w", err)
	}

	return &AtlasTexture{target: target, image: image, memory: memory, view: view, size: size}, nil
}

// Image returns the underlying Vulkan image, for binding as a sampled
// texture by an external renderer.
func (t *AtlasTexture) Image() vk.Image { return t.image }

// View returns the image view used for sampling.
func (t *AtlasTexture) View() vk.ImageView { return t.view }

// Upload implements atlas.GPUUpload: it blits a dirty rectangle from the
// CPU mirror into the GPU image via a staging buffer.
func (t *AtlasTexture) Upload(x, y, width, height int, pixels []byte) error {
	return uploadRegion(t.target, t.image, 0, x, y, width, height, pixels)
}

// Destroy releases the GPU resources.
func (t *AtlasTexture) Destroy() {
	t.target.Device.DestroyImageView(t.view)
	t.target.Device.FreeMemory(t.memory)
	t.target.Device.DestroyImage(t.image)
}

// PageTableTexture is a single R32UI image with one mip level per
// virtual-texture LOD, mirroring the CPU-side vtexcore.PageTables. It
// implements vtexcore.GPUSync.
type PageTableTexture struct {
	target Target
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	levels uint32
}

// NewPageTableTexture allocates an R32UI image with baseWidth x
// baseHeight at mip 0 and `levels` total mips, the coarsest being 1x1.
func NewPageTableTexture(target Target, baseWidth, baseHeight, levels uint32) (*PageTableTexture, error) {
	image, err := target.Device.CreateImage(&vk.ImageCreateInfo{
		ImageType: vk.IMAGE_TYPE_2D,
		Format:    vk.FORMAT_R32_UINT,
		Extent:    vk.Extent3D{Width: baseWidth, Height: baseHeight, Depth: 1},
		MipLevels: levels,
		ArrayLayers:   1,
		Samples:       vk.SAMPLE_COUNT_1_BIT,
		Tiling:        vk.IMAGE_TILING_OPTIMAL,
		Usage:         vk.IMAGE_USAGE_TRANSFER_DST_BIT | vk.IMAGE_USAGE_SAMPLED_BIT,
		SharingMode:   vk.SHARING_MODE_EXCLUSIVE,
		InitialLayout: vk.IMAGE_LAYOUT_UNDEFINED,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create page-table image: %w", err)
	}

	memReqs := target.Device.GetImageMemoryRequirements(image)
	memProps := target.PhysicalDevice.GetMemoryProperties()
	memTypeIndex, found := vk.FindMemoryType(memProps, memReqs.MemoryTypeBits, vk.MEMORY_PROPERTY_DEVICE_LOCAL_BIT)
	if !found {
		target.Device.DestroyImage(image)
		return nil, fmt.Errorf("gpu: no suitable memory type for page-table image")
	}
	memory, err := target.Device.AllocateMemory(&vk.MemoryAllocateInfo{AllocationSize: memReqs.Size, MemoryTypeIndex: memTypeIndex})
	if err != nil {
		target.Device.DestroyImage(image)
		return nil, fmt.Errorf("gpu: failed to allocate page-table memory: %w", err)
	}
	if err := target.Device.BindImageMemory(image, memory, 0); err != nil {
		target.Device.FreeMemory(memory)
		target.Device.DestroyImage(image)
		return nil, fmt.Errorf("gpu: failed to bind page-table memory: %w", err)
	}

	view, err := target.Device.CreateImageView(&vk.ImageViewCreateInfo{
		Image:    image,
		ViewType: vk.IMAGE_VIEW_TYPE_2D,
		Format:   vk.FORMAT_R32_UINT,
		Components: vk.ComponentMapping{
			R: vk.COMPONENT_SWIZZLE_IDENTITY,
			G: vk.COMPONENT_SWIZZLE_IDENTITY,
			B: vk.COMPONENT_SWIZZLE_IDENTITY,
			A: vk.COMPONENT_SWIZZLE_IDENTITY,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.IMAGE_ASPECT_COLOR_BIT,
			BaseMipLevel:   0,
			LevelCount:     levels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		target.Device.FreeMemory(memory)
		target.Device.DestroyImage(image)
		return nil, fmt.Errorf("gpu: failed to create page-table image view: %w", err)
	}

	return &PageTableTexture{target: target, image: image, memory: memory, view: view, levels: levels}, nil
}

// View returns the image view used for nearest-filtered, per-mip
// sampling by the page-table shader contract.
func (t *PageTableTexture) View() vk.ImageView { return t.view }

// UploadMip implements vtexcore.GPUSync: it uploads one full mip level
// of packed PageTableEntry words.
func (t *PageTableTexture) UploadMip(lod uint32, width, height int, data []uint32) error {
	if lod >= t.levels {
		return fmt.Errorf("gpu: lod %d exceeds page-table texture level count %d", lod, t.levels)
	}
	bytes := make([]byte, len(data)*4)
	for i, v := range data {
		bytes[i*4+0] = byte(v)
		bytes[i*4+1] = byte(v >> 8)
		bytes[i*4+2] = byte(v >> 16)
		bytes[i*4+3] = byte(v >> 24)
	}
	return uploadRegion(t.target, t.image, lod, 0, 0, width, height, bytes)
}

// Destroy releases the GPU resources.
func (t *PageTableTexture) Destroy() {
	t.target.Device.DestroyImageView(t.view)
	t.target.Device.FreeMemory(t.memory)
	t.target.Device.DestroyImage(t.image)
}

// uploadRegion is the shared staging-buffer-copy-submit sequence used by
// both AtlasTexture.Upload and PageTableTexture.UploadMip, generalized
// from vala/canvas/dense.go's (*DenseCanvas).Upload to take an explicit
// mip level.
func uploadRegion(target Target, image vk.Image, mip uint32, x, y, width, height int, pixels []byte) error {
	stagingBuffer, stagingMemory, err := target.Device.CreateBufferWithMemory(
		uint64(len(pixels)),
		vk.BUFFER_USAGE_TRANSFER_SRC_BIT,
		vk.MEMORY_PROPERTY_HOST_VISIBLE_BIT|vk.MEMORY_PROPERTY_HOST_COHERENT_BIT,
		target.PhysicalDevice,
	)
	if err != nil {
		return fmt.Errorf("gpu: failed to create staging buffer: %w", err)
	}
	defer target.Device.DestroyBuffer(stagingBuffer)
	defer target.Device.FreeMemory(stagingMemory)

	if err := target.Device.UploadToBuffer(stagingMemory, pixels); err != nil {
		return fmt.Errorf("gpu: failed to upload to staging buffer: %w", err)
	}

	cmdBuffers, err := target.Device.AllocateCommandBuffers(&vk.CommandBufferAllocateInfo{
		CommandPool:        target.CommandPool,
		Level:              vk.COMMAND_BUFFER_LEVEL_PRIMARY,
		CommandBufferCount: 1,
	})
	if err != nil {
		return fmt.Errorf("gpu: failed to allocate command buffer: %w", err)
	}
	cmd := cmdBuffers[0]
	defer target.Device.FreeCommandBuffers(target.CommandPool, cmdBuffers)

	cmd.Begin(&vk.CommandBufferBeginInfo{Flags: vk.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT})

	subresource := vk.ImageSubresourceRange{
		AspectMask:     vk.IMAGE_ASPECT_COLOR_BIT,
		BaseMipLevel:   mip,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	barrier := vk.ImageMemoryBarrier{
		OldLayout:           vk.IMAGE_LAYOUT_UNDEFINED,
		NewLayout:           vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
		SrcQueueFamilyIndex: ^uint32(0),
		DstQueueFamilyIndex: ^uint32(0),
		Image:               image,
		SubresourceRange:    subresource,
		SrcAccessMask:       0,
		DstAccessMask:       vk.ACCESS_TRANSFER_WRITE_BIT,
	}
	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, vk.PIPELINE_STAGE_TRANSFER_BIT, 0, []vk.ImageMemoryBarrier{barrier})

	cmd.CopyBufferToImage(stagingBuffer, image, vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, []vk.BufferImageCopy{{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.IMAGE_ASPECT_COLOR_BIT,
			MipLevel:       mip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: int32(x), Y: int32(y), Z: 0},
		ImageExtent: vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
	}})

	barrier.OldLayout = vk.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL
	barrier.NewLayout = vk.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL
	barrier.SrcAccessMask = vk.ACCESS_TRANSFER_WRITE_BIT
	barrier.DstAccessMask = vk.ACCESS_SHADER_READ_BIT
	cmd.PipelineBarrier(vk.PIPELINE_STAGE_TRANSFER_BIT, vk.PIPELINE_STAGE_FRAGMENT_SHADER_BIT, 0, []vk.ImageMemoryBarrier{barrier})

	if err := cmd.End(); err != nil {
		return fmt.Errorf("gpu: failed to end command buffer: %w", err)
	}

	if err := target.Queue.Submit([]vk.SubmitInfo{{CommandBuffers: []vk.CommandBuffer{cmd}}}, vk.Fence{}); err != nil {
		return fmt.Errorf("gpu: failed to submit upload: %w", err)
	}
	if err := target.Queue.WaitIdle(); err != nil {
		return fmt.Errorf("gpu: failed to wait for upload to complete: %w", err)
	}
	return nil
}
