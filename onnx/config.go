package onnx

import (
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/models/postprocess"
)

// Config for the OpenCV DNN detector.
type Config struct {
	ModelPath string
	Kind      detector.Kind
	Classes   *models.OutputClassSet
	// InputSize is the square model input resolution.
	InputSize int
	NMS       postprocess.NMSConfig
	// UseCUDA selects the CUDA backend and target instead of the CPU.
	UseCUDA bool
}

// ConfigFor builds a Config from a resolved model spec.
func ConfigFor(spec models.Spec) Config {
	return Config{
		ModelPath: spec.Path,
		Kind:      spec.Kind,
		Classes:   spec.Classes,
		InputSize: 640,
		NMS:       postprocess.DefaultNMSConfig(),
	}
}
