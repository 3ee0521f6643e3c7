package vulkango

/*
#cgo LDFLAGS: -lvulkan
#include <vulkan/vulkan.h>
#include <stdlib.h>
*/
import "C"
import "unsafe"

type instanceCreateData struct {
	cInfo      *C.VkInstanceCreateInfo
	appInfo    *C.VkApplicationInfo
	appName    *C.char
	engineName *C.char
	layers     []*C.char
	extensions []*C.char
}

func (info *InstanceCreateInfo) vulkanize() *instanceCreateData {
	data := &instanceCreateData{}

	data.cInfo = (*C.VkInstanceCreateInfo)(C.calloc(1, C.sizeof_VkInstanceCreateInfo))
	data.cInfo.sType = C.VK_STRUCTURE_TYPE_INSTANCE_CREATE_INFO
	data.cInfo.flags = C.VkInstanceCreateFlags(info.Flags)

	if info.ApplicationInfo != nil {
		data.appInfo = (*C.VkApplicationInfo)(C.calloc(1, C.sizeof_VkApplicationInfo))
		data.appInfo.sType = C.VK_STRUCTURE_TYPE_APPLICATION_INFO

		data.appName = C.CString(info.ApplicationInfo.ApplicationName)
		data.appInfo.pApplicationName = data.appName
		data.appInfo.applicationVersion = C.uint32_t(info.ApplicationInfo.ApplicationVersion)

		data.engineName = C.CString(info.ApplicationInfo.EngineName)
		data.appInfo.pEngineName = data.engineName
		data.appInfo.engineVersion = C.uint32_t(info.ApplicationInfo.EngineVersion)

		data.appInfo.apiVersion = C.uint32_t(info.ApplicationInfo.ApiVersion)

		data.cInfo.pApplicationInfo = data.appInfo
	}

	if len(info.EnabledLayerNames) > 0 {
		data.layers = make([]*C.char, len(info.EnabledLayerNames))
		for i, layer := range info.EnabledLayerNames {
			data.layers[i] = C.CString(layer)
		}
		data.cInfo.enabledLayerCount = C.uint32_t(len(data.layers))
		data.cInfo.ppEnabledLayerNames = &data.layers[0]
	}

	if len(info.EnabledExtensionNames) > 0 {
		data.extensions = make([]*C.char, len(info.EnabledExtensionNames))
		for i, ext := range info.EnabledExtensionNames {
			data.extensions[i] = C.CString(ext)
		}
		data.cInfo.enabledExtensionCount = C.uint32_t(len(data.extensions))
		data.cInfo.ppEnabledExtensionNames = &data.extensions[0]
	}

	return data
}

func (data *instanceCreateData) free() {
	for _, layer := range data.layers {
		C.free(unsafe.Pointer(layer))
	}
	for _, ext := range data.extensions {
		C.free(unsafe.Pointer(ext))
	}
	if data.appName != nil {
		C.free(unsafe.Pointer(data.appName))
	}
	if data.engineName != nil {
		C.free(unsafe.Pointer(data.engineName))
	}
	if data.appInfo != nil {
		C.free(unsafe.Pointer(data.appInfo))
	}
	if data.cInfo != nil {
		C.free(unsafe.Pointer(data.cInfo))
	}
}

func CreateInstance(createInfo *InstanceCreateInfo) (Instance, error) {
	data := createInfo.vulkanize()
	defer data.free()

	var instance C.VkInstance
	result := C.vkCreateInstance(data.cInfo, nil, &instance)

	if result != C.VK_SUCCESS {
		return Instance{}, Result(result)
	}

	return Instance{handle: instance}, nil
}

func (instance Instance) Destroy() {
	C.vkDestroyInstance(instance.handle, nil)
}

func (instance Instance) Handle() uintptr {
	return uintptr(unsafe.Pointer(instance.handle))
}

func (instance Instance) EnumeratePhysicalDevices() ([]PhysicalDevice, error) {
	var count C.uint32_t
	result := C.vkEnumeratePhysicalDevices(instance.handle, &count, nil)
	if result != C.VK_SUCCESS {
		return nil, Result(result)
	}

	if count == 0 {
		return nil, nil
	}

	devices := make([]C.VkPhysicalDevice, count)
	result = C.vkEnumeratePhysicalDevices(instance.handle, &count, &devices[0])
	if result != C.VK_SUCCESS {
		return nil, Result(result)
	}

	goDevices := make([]PhysicalDevice, count)
	for i, d := range devices {
		goDevices[i] = PhysicalDevice{handle: d}
	}

	return goDevices, nil
}

func EnumerateInstanceVersion() (uint32, error) {
	var version C.uint32_t
	result := C.vkEnumerateInstanceVersion(&version)

	if result != C.VK_SUCCESS {
		return 0, Result(result)
	}

	return uint32(version), nil
}
