// Package acceleration picks the execution provider the inference engine runs
// its ONNX models on. It detects AMD ROCm, NVIDIA CUDA and Intel OpenVINO and
// maps the chosen backend to an onnxruntime execution provider name.
package acceleration

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/L0G1H/deepfakery/pkg/logging"
)

// Backend represents an acceleration backend type.
type Backend string

const (
	// BackendCPU is the default CPU-only backend (always available).
	BackendCPU Backend = "cpu"

	// BackendROCm is the AMD ROCm backend for AMD GPUs.
	BackendROCm Backend = "rocm"

	// BackendCUDA is the NVIDIA CUDA backend.
	BackendCUDA Backend = "cuda"

	// BackendOpenVINO is the Intel OpenVINO backend for Intel GPUs/NPUs.
	BackendOpenVINO Backend = "openvino"

	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
)

// providers maps each backend to its onnxruntime execution provider.
var providers = map[Backend]string{
	BackendCPU:      "CPUExecutionProvider",
	BackendROCm:     "ROCMExecutionProvider",
	BackendCUDA:     "CUDAExecutionProvider",
	BackendOpenVINO: "OpenVINOExecutionProvider",
}

// ParseBackend converts a config value into a Backend.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	if b == BackendAuto {
		return b, nil
	}
	if _, ok := providers[b]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
	return b, nil
}

// Provider returns the onnxruntime execution provider name for the backend.
// Unknown backends and auto map to the CPU provider.
func (b Backend) Provider() string {
	if p, ok := providers[b]; ok {
		return p
	}
	return providers[BackendCPU]
}

// BackendInfo contains information about an acceleration backend.
type BackendInfo struct {
	Backend     Backend
	Name        string
	Available   bool
	Version     string
	DeviceName  string
	DeviceCount int
	Warning     string
}

// Config holds acceleration configuration.
type Config struct {
	PreferredBackend Backend
	FallbackToCPU    bool
	DeviceIndex      int // For multi-GPU systems
}

// DefaultConfig returns default acceleration configuration.
func DefaultConfig() Config {
	return Config{
		PreferredBackend: BackendAuto,
		FallbackToCPU:    true,
		DeviceIndex:      0,
	}
}

// Manager manages acceleration backends.
type Manager struct {
	config            Config
	activeBackend     Backend
	availableBackends map[Backend]*BackendInfo
	mu                sync.RWMutex
	initialized       bool
}

// NewManager returns a manager that has not detected any backends yet.
func NewManager() *Manager {
	return &Manager{
		config:            DefaultConfig(),
		availableBackends: make(map[Backend]*BackendInfo),
	}
}

// Initialize initializes the acceleration manager with the given config.
func (m *Manager) Initialize(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = cfg

	// Detect available backends
	m.detectBackends()

	// Select the best backend
	backend := m.selectBackend(cfg.PreferredBackend)
	m.activeBackend = backend

	m.initialized = true

	info := m.availableBackends[backend]
	if info != nil {
		logging.Infof("Acceleration initialized: %s (%s)", info.Name, info.DeviceName)
		if info.Warning != "" {
			logging.Warnf("Backend warning: %s", info.Warning)
		}
	}

	if cfg.PreferredBackend != BackendAuto && backend != cfg.PreferredBackend && !cfg.FallbackToCPU {
		return fmt.Errorf("%w: %s", ErrBackendNotAvailable, cfg.PreferredBackend)
	}

	return nil
}

// detectBackends detects all available acceleration backends.
func (m *Manager) detectBackends() {
	// CPU is always available
	m.availableBackends[BackendCPU] = &BackendInfo{
		Backend:     BackendCPU,
		Name:        "CPU (onnxruntime)",
		Available:   true,
		DeviceName:  getCPUName(),
		DeviceCount: runtime.NumCPU(),
	}

	// Detect ROCm (AMD)
	if rocmInfo := detectROCm(); rocmInfo != nil {
		m.availableBackends[BackendROCm] = rocmInfo
	}

	// Detect CUDA (NVIDIA)
	if cudaInfo := detectCUDA(); cudaInfo != nil {
		m.availableBackends[BackendCUDA] = cudaInfo
	}

	// Detect OpenVINO (Intel)
	if openvinoInfo := detectOpenVINO(); openvinoInfo != nil {
		m.availableBackends[BackendOpenVINO] = openvinoInfo
	}
}

// selectBackend selects the best available backend.
func (m *Manager) selectBackend(preferred Backend) Backend {
	// If specific backend requested, try to use it
	if preferred != BackendAuto {
		if info, ok := m.availableBackends[preferred]; ok && info.Available {
			return preferred
		}
		if m.config.FallbackToCPU {
			logging.Warnf("Requested backend %s not available, falling back to CPU", preferred)
		}
		return BackendCPU
	}

	// Auto-select: prefer ROCm > CUDA > OpenVINO > CPU
	priorities := []Backend{BackendROCm, BackendCUDA, BackendOpenVINO, BackendCPU}

	for _, backend := range priorities {
		if info, ok := m.availableBackends[backend]; ok && info.Available {
			return backend
		}
	}

	return BackendCPU
}

// GetActiveBackend returns the currently active backend.
func (m *Manager) GetActiveBackend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeBackend
}

// Provider returns the execution provider for the active backend.
func (m *Manager) Provider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeBackend.Provider()
}

// GetBackendInfo returns information about a specific backend.
func (m *Manager) GetBackendInfo(backend Backend) *BackendInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.availableBackends[backend]
}

// GetAllBackends returns information about all detected backends.
func (m *Manager) GetAllBackends() map[Backend]*BackendInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[Backend]*BackendInfo)
	for k, v := range m.availableBackends {
		result[k] = v
	}
	return result
}

// SortedBackends returns the detected backends ordered by name.
func (m *Manager) SortedBackends() []*BackendInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*BackendInfo, 0, len(m.availableBackends))
	for _, v := range m.availableBackends {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Backend < result[j].Backend })
	return result
}

// IsAccelerated returns true if using GPU/NPU acceleration.
func (m *Manager) IsAccelerated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeBackend != BackendCPU
}

// detectROCm detects AMD ROCm availability.
func detectROCm() *BackendInfo {
	info := &BackendInfo{
		Backend:   BackendROCm,
		Name:      "AMD ROCm",
		Available: false,
	}

	// Check for ROCm installation
	rocmPath := os.Getenv("ROCM_PATH")
	if rocmPath == "" {
		rocmPath = "/opt/rocm"
	}

	// Check if ROCm directory exists
	if _, err := os.Stat(rocmPath); os.IsNotExist(err) {
		return nil
	}

	// Check for rocm-smi to get device info
	cmd := exec.Command("rocm-smi", "--showproductname")
	output, err := cmd.Output()
	if err != nil {
		// Try alternative detection
		cmd = exec.Command("rocminfo")
		output, err = cmd.Output()
		if err != nil {
			return nil
		}
	}

	// Parse device info
	lines := strings.Split(string(output), "\n")
	for _, line := range lines {
		if strings.Contains(line, "GPU") || strings.Contains(line, "gfx") {
			info.DeviceName = strings.TrimSpace(line)
			info.DeviceCount++
		}
	}

	if info.DeviceCount == 0 {
		// Check for any AMD GPU via /sys
		devices, _ := filepath.Glob("/sys/class/drm/card*/device/vendor")
		for _, dev := range devices {
			vendor, _ := os.ReadFile(dev)
			if strings.TrimSpace(string(vendor)) == "0x1002" { // AMD vendor ID
				info.DeviceCount++
			}
		}
	}

	if info.DeviceCount > 0 {
		info.Available = true
		info.Version = getROCmVersion(rocmPath)
		if info.DeviceName == "" {
			info.DeviceName = fmt.Sprintf("AMD GPU (%d device(s))", info.DeviceCount)
		}
	}

	return info
}

// getROCmVersion gets the ROCm version.
func getROCmVersion(rocmPath string) string {
	versionFile := filepath.Join(rocmPath, ".info", "version")
	if data, err := os.ReadFile(versionFile); err == nil {
		return strings.TrimSpace(string(data))
	}

	// Try alternative
	versionFile = filepath.Join(rocmPath, "version")
	if data, err := os.ReadFile(versionFile); err == nil {
		return strings.TrimSpace(string(data))
	}

	return "unknown"
}

// detectCUDA detects NVIDIA CUDA availability.
func detectCUDA() *BackendInfo {
	info := &BackendInfo{
		Backend:   BackendCUDA,
		Name:      "NVIDIA CUDA",
		Available: false,
		Warning:   "the engine needs onnxruntime-gpu built for this CUDA/cuDNN version",
	}

	// Check for nvidia-smi
	cmd := exec.Command("nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > 0 && lines[0] != "" {
		parts := strings.Split(lines[0], ",")
		if len(parts) >= 1 {
			info.DeviceName = strings.TrimSpace(parts[0])
		}
		if len(parts) >= 2 {
			info.Version = strings.TrimSpace(parts[1])
		}
		info.DeviceCount = len(lines)
		info.Available = true
	}

	return info
}

// detectOpenVINO detects Intel OpenVINO availability.
func detectOpenVINO() *BackendInfo {
	info := &BackendInfo{
		Backend:   BackendOpenVINO,
		Name:      "Intel OpenVINO",
		Available: false,
		Warning:   "the engine needs onnxruntime-openvino; inswapper may fall back to CPU for unsupported ops",
	}

	// Check for OpenVINO environment
	openvinoPath := os.Getenv("INTEL_OPENVINO_DIR")
	if openvinoPath == "" {
		// Check common installation paths
		commonPaths := []string{
			"/opt/intel/openvino",
			"/opt/intel/openvino_2024",
			"/opt/intel/openvino_2023",
		}
		for _, p := range commonPaths {
			if _, err := os.Stat(p); err == nil {
				openvinoPath = p
				break
			}
		}
	}

	if openvinoPath == "" {
		return nil
	}

	info.Available = true
	info.Version = getOpenVINOVersion(openvinoPath)

	// Detect Intel GPU/NPU
	info.DeviceName = detectIntelDevice()
	if info.DeviceName != "" {
		info.DeviceCount = 1
	}

	return info
}

// getOpenVINOVersion gets the OpenVINO version.
func getOpenVINOVersion(path string) string {
	versionFile := filepath.Join(path, "version.txt")
	if data, err := os.ReadFile(versionFile); err == nil {
		return strings.TrimSpace(string(data))
	}
	return "unknown"
}

// detectIntelDevice detects Intel GPU or NPU.
func detectIntelDevice() string {
	// Check for Intel GPU via /sys
	devices, _ := filepath.Glob("/sys/class/drm/card*/device/vendor")
	for _, dev := range devices {
		vendor, _ := os.ReadFile(dev)
		if strings.TrimSpace(string(vendor)) == "0x8086" { // Intel vendor ID
			// Try to get device name
			deviceDir := filepath.Dir(dev)
			if nameData, err := os.ReadFile(filepath.Join(deviceDir, "device")); err == nil {
				return fmt.Sprintf("Intel GPU (device: %s)", strings.TrimSpace(string(nameData)))
			}
			return "Intel GPU"
		}
	}

	// Check for NPU
	if _, err := os.Stat("/dev/accel/accel0"); err == nil {
		return "Intel NPU"
	}

	return "Intel (CPU inference)"
}

// getCPUName returns the CPU name.
func getCPUName() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "Unknown CPU"
	}

	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}

	return "Unknown CPU"
}

// ErrBackendNotAvailable is returned when a requested backend is not available.
var ErrBackendNotAvailable = errors.New("acceleration backend not available")

// ErrUnknownBackend is returned by ParseBackend for names it does not know.
var ErrUnknownBackend = errors.New("unknown acceleration backend")
