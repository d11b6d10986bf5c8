package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath overrides the ONNX Runtime shared library location.
const EnvLibraryPath = "GLENS_ONNXRUNTIME_LIB"

const (
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

var envMu sync.Mutex

// LibraryName returns the shared library filename for the current OS.
func LibraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return libLinux, nil
	case "darwin":
		return libDarwin, nil
	case "windows":
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists locations to probe, most specific first.
func libraryCandidates(useGPU bool, projectRoot, libName string) []string {
	var paths []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	if useGPU {
		paths = append(paths, "/opt/onnxruntime/gpu/lib/"+libName)
	}
	paths = append(paths,
		"/usr/local/lib/"+libName,
		"/usr/lib/"+libName,
		"/opt/onnxruntime/cpu/lib/"+libName,
	)
	if projectRoot != "" {
		if useGPU {
			paths = append(paths, filepath.Join(projectRoot, "onnxruntime", "gpu", "lib", libName))
		}
		paths = append(paths, filepath.Join(projectRoot, "onnxruntime", "lib", libName))
	}
	return paths
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// FindLibrary returns the first existing ONNX Runtime shared library.
func FindLibrary(useGPU bool) (string, error) {
	libName, err := LibraryName()
	if err != nil {
		return "", err
	}
	for _, p := range libraryCandidates(useGPU, findProjectRoot(), libName) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ONNX Runtime library %s not found (set %s)", libName, EnvLibraryPath)
}

// Initialize locates the shared library and initializes the ONNX Runtime
// environment once per process.
func Initialize(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	path, err := FindLibrary(useGPU)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	slog.Debug("ONNX Runtime initialized", "library", path, "gpu", useGPU)
	return nil
}

// Shutdown destroys the ONNX Runtime environment if it was initialized.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !onnxruntime_go.IsInitialized() {
		return nil
	}
	if err := onnxruntime_go.DestroyEnvironment(); err != nil {
		return errors.Join(errors.New("failed to destroy ONNX Runtime environment"), err)
	}
	return nil
}
