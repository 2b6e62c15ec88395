// Package inference runs YOLOv8 ONNX exports through onnxruntime.
package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// DefaultSharedLibPath returns the conventional location of the onnxruntime
// shared library for this platform.
func DefaultSharedLibPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "windows":
		return "./third_party/onnxruntime.dll"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

// InitEnvironment loads the onnxruntime library once per process. Later calls
// return the first call's result regardless of libPath.
func InitEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath == "" {
			libPath = DefaultSharedLibPath()
		}
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		envErr = errors.Wrap(ort.InitializeEnvironment(), "initialize onnxruntime")
	})
	return envErr
}
