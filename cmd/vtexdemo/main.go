// Command vtexdemo drives a vtexcore.Manager against a real Vulkan
// device: it stands up just enough instance/device/command-pool
// boilerplate to back a gpu.AtlasTexture and gpu.PageTableTexture, then
// runs the manager's per-frame update against a synthetic feedback
// stream, logging residency stats.
//
// It also stands up a gpu.AtlasPresenter: a minimal swapchain and
// single-pass pipeline, built the way vala.go builds its composite
// pass, that blits the atlas texture straight to the window each frame.
// This is not a renderer for the virtual texture's intended consumer
// (a scene that samples the page tables) — it exists so that residency
// decisions are visible, not just logged: evicted pages, newly-streamed
// pages and still-empty (magenta) atlas slots all show up on screen.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"

	sdl "github.com/NOT-REAL-GAMES/sdl3go"
	"github.com/rs/zerolog"

	"github.com/NOT-REAL-GAMES/vtexcore"
	"github.com/NOT-REAL-GAMES/vtexcore/atlas"
	"github.com/NOT-REAL-GAMES/vtexcore/gpu"
	vk "github.com/NOT-REAL-GAMES/vtexcore/internal/vulkango"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	if runtime.GOOS == "linux" {
		os.Setenv("SDL_VIDEODRIVER", "X11")
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		log.Fatal().Err(err).Msg("sdl init failed")
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("vtexdemo", 960, 960, sdl.WINDOW_VULKAN)
	if err != nil {
		log.Fatal().Err(err).Msg("window creation failed")
	}
	defer window.Destroy()

	exts, err := sdl.VulkanGetInstanceExtensions()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to query vulkan instance extensions")
	}

	instance, err := vk.CreateInstance(&vk.InstanceCreateInfo{
		ApplicationInfo: &vk.ApplicationInfo{
			ApplicationName:    "vtexdemo",
			ApplicationVersion: vk.MakeApiVersion(0, 1, 0, 0),
			EngineName:         "vtexcore",
			EngineVersion:      vk.MakeApiVersion(0, 1, 0, 0),
			ApiVersion:         vk.ApiVersion_1_4,
		},
		EnabledExtensionNames: exts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("instance creation failed")
	}
	defer instance.Destroy()

	devices, err := instance.EnumeratePhysicalDevices()
	if err != nil || len(devices) == 0 {
		log.Fatal().Err(err).Msg("no vulkan physical devices found")
	}
	physicalDevice := devices[0]

	queueFamilies := physicalDevice.GetQueueFamilyProperties()
	graphicsFamily := -1
	for i, family := range queueFamilies {
		if family.QueueFlags&vk.QUEUE_GRAPHICS_BIT != 0 {
			graphicsFamily = i
			break
		}
	}
	if graphicsFamily == -1 {
		log.Fatal().Msg("no graphics-capable queue family found")
	}

	device, err := physicalDevice.CreateDevice(&vk.DeviceCreateInfo{
		QueueCreateInfos: []vk.DeviceQueueCreateInfo{
			{QueueFamilyIndex: uint32(graphicsFamily), QueuePriorities: []float32{1.0}},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("logical device creation failed")
	}
	defer device.Destroy()

	queue := device.GetQueue(uint32(graphicsFamily), 0)

	commandPool, err := device.CreateCommandPool(&vk.CommandPoolCreateInfo{
		Flags:            vk.COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER_BIT,
		QueueFamilyIndex: uint32(graphicsFamily),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("command pool creation failed")
	}
	defer device.DestroyCommandPool(commandPool)

	target := gpu.Target{Device: device, PhysicalDevice: physicalDevice, CommandPool: commandPool, Queue: queue}

	surfHandle, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		log.Fatal().Err(err).Msg("vulkan surface creation failed")
	}
	surface := vk.NewSurfaceKHR(surfHandle)

	cfg := vtexcore.Config{
		VirtualSize:  8192,
		PageSize:     128,
		PagePadding:  2,
		AtlasSlots:   16,
		MinPinnedLOD: 4,
	}
	derived, err := cfg.Derive()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid virtual texture config")
	}

	atlasTexture, err := gpu.NewAtlasTexture(target, uint32(derived.AtlasSize))
	if err != nil {
		log.Fatal().Err(err).Msg("atlas texture creation failed")
	}
	defer atlasTexture.Destroy()

	tableTexture, err := gpu.NewPageTableTexture(target, uint32(derived.PagesPerEdge), uint32(derived.PagesPerEdge), derived.LODCount)
	if err != nil {
		log.Fatal().Err(err).Msg("page-table texture creation failed")
	}
	defer tableTexture.Destroy()

	cpuAtlas := atlas.New(derived.AtlasSlots, derived.SlotSize)
	atlasSink := &syncingAtlas{cpu: cpuAtlas, gpu: atlasTexture}

	loader := vtexcore.NewLoader(4)
	manager := vtexcore.NewManager(derived, atlasSink, tableTexture, loader)

	presenter, err := gpu.NewAtlasPresenter(target, surface, 960, 960, uint32(graphicsFamily), atlasTexture.View())
	if err != nil {
		log.Fatal().Err(err).Msg("atlas presenter creation failed")
	}
	defer presenter.Destroy()

	log.Info().
		Int("pagesPerEdge", derived.PagesPerEdge).
		Uint32("lodCount", derived.LODCount).
		Int("atlasSize", derived.AtlasSize).
		Msg("virtual texture initialized")

	feedback := newFeedbackSimulator(derived)

	running := true
	frame := 0
	for running {
		for event, ok := sdl.PollEvent(); ok; event, ok = sdl.PollEvent() {
			if event.Type == sdl.EVENT_QUIT {
				running = false
			}
		}

		if err := manager.Frame(feedback.next()); err != nil {
			log.Error().Err(err).Msg("frame update failed")
		}

		if err := presenter.RenderFrame(); err != nil {
			log.Error().Err(err).Msg("presenter frame failed")
		}

		if frame%120 == 0 {
			stats := manager.Stats()
			log.Info().
				Int("resident", stats.Resident).
				Int("processing", stats.Processing).
				Int("free", stats.Free).
				Msg("residency stats")
		}

		frame++
		sdl.Delay(5)
	}

	loader.Wait()
}

// syncingAtlas blits into the CPU atlas mirror then immediately syncs
// the dirty rectangle to the GPU texture, implementing
// vtexcore.AtlasWriter on top of atlas.Atlas and gpu.AtlasTexture.
type syncingAtlas struct {
	cpu *atlas.Atlas
	gpu *gpu.AtlasTexture
}

func (s *syncingAtlas) WriteSlot(slotX, slotY int, pixels []byte) error {
	if err := s.cpu.WriteSlot(slotX, slotY, pixels); err != nil {
		return fmt.Errorf("vtexdemo: atlas write failed: %w", err)
	}
	return s.cpu.Sync(s.gpu)
}

// feedbackSimulator stands in for a real GPU feedback readback, which
// this demo has no renderer to produce. It emits a
// plausible feedback buffer: a handful of random in-bounds page
// requests each frame, with the mip level drawn uniformly from all
// levels.
type feedbackSimulator struct {
	derived vtexcore.Derived
	rng     *rand.Rand
}

func newFeedbackSimulator(d vtexcore.Derived) *feedbackSimulator {
	return &feedbackSimulator{derived: d, rng: rand.New(rand.NewSource(1))}
}

// encodeFeedbackWord packs (lod, x, y) using the layout
// vtexcore.DecodeFeedback expects: bits 0..4 lod, bits 5..12 x, bits
// 13..20 y. A real deployment produces this word in the rasterizer
// shader; this demo has no renderer, so it packs the word in Go instead.
func encodeFeedbackWord(lod uint32, x, y int32) uint32 {
	return (lod & 0x1F) | (uint32(x)&0xFF)<<5 | (uint32(y)&0xFF)<<13
}

func (f *feedbackSimulator) next() []uint32 {
	const requestsPerFrame = 8
	words := make([]uint32, 0, requestsPerFrame)
	for i := 0; i < requestsPerFrame; i++ {
		lod := uint32(f.rng.Intn(int(f.derived.LODCount)))
		px, py := f.derived.PagesAtLOD(lod)
		x := int32(f.rng.Intn(px))
		y := int32(f.rng.Intn(py))
		words = append(words, encodeFeedbackWord(lod, x, y))
	}
	return words
}
