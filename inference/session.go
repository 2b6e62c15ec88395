package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Session represents a model session from the onnxruntime with its bound
// input and output tensors.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// SessionOptions tunes the runtime.
type SessionOptions struct {
	IntraOpThreads int
	InterOpThreads int
}

// NewSession creates a session for a model with one "images" input of shape
// (1, 3, size, size) and one "output0" of shape (1, features, anchors).
//
// Arguments:
//   - modelPath: The ONNX file.
//   - size: Square input resolution.
//   - features: Per-anchor feature count.
//   - anchors: Number of anchors.
//   - opts: Threading options. Zero values keep the runtime defaults.
//
// Returns:
//   - *Session: The session. Close releases it.
//   - error: When tensors or the session cannot be created.
func NewSession(modelPath string, size, features, anchors int, opts SessionOptions) (*Session, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(features), int64(anchors)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		options.SetIntraOpNumThreads(opts.IntraOpThreads)
	}
	if opts.InterOpThreads > 0 {
		options.SetInterOpNumThreads(opts.InterOpThreads)
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session")
	}

	return &Session{Session: session, Input: input, Output: output}, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		s.Session.Destroy()
		s.Session = nil
	}
}
