// Package models - registry of the models an algorithm can run and the
// label-set judgments applied to their output.
package models

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/detector"
)

// Spec describes how to load and interpret one model.
type Spec struct {
	// ID is the model identifier an algorithm refers to, e.g. "fire.pt".
	ID string
	// Kind selects the output decoder.
	Kind detector.Kind
	// Path is the ONNX file.
	Path string
	// Classes maps class indices to labels.
	Classes *OutputClassSet
}

// Registry resolves model identifiers to specs under a model directory.
type Registry struct {
	dir   string
	kinds map[string]detector.Kind
}

// NewRegistry creates a registry rooted at dir. Pose models are recognised by
// a "-pose" suffix; every other model is a box model unless registered.
func NewRegistry(dir string) *Registry {
	r := &Registry{dir: dir, kinds: make(map[string]detector.Kind)}
	for id := range judges {
		r.kinds[id] = detector.KindClassifier
	}
	return r
}

// Register overrides the kind of a model.
func (r *Registry) Register(id string, kind detector.Kind) {
	r.kinds[id] = kind
}

// Resolve returns the spec for id.
//
// The ONNX file is <dir>/<stem>.onnx where stem is id without its extension.
// Labels come from <dir>/<stem>.names when present, otherwise COCO (or the
// single "person" class for pose models).
//
// Arguments:
//   - id: The model identifier.
//
// Returns:
//   - Spec: The resolved spec.
//   - error: When the model file is missing or the names file is unreadable.
func (r *Registry) Resolve(id string) (Spec, error) {
	stem := strings.TrimSuffix(id, filepath.Ext(id))
	if stem == "" {
		return Spec{}, errors.Errorf("empty model identifier %q", id)
	}

	spec := Spec{ID: id, Kind: r.kindOf(id, stem), Path: filepath.Join(r.dir, stem+".onnx")}
	if _, err := os.Stat(spec.Path); err != nil {
		return Spec{}, errors.Wrapf(err, "model %s", id)
	}

	namesPath := filepath.Join(r.dir, stem+".names")
	switch _, err := os.Stat(namesPath); {
	case err == nil:
		set, err := LoadNames(namesPath)
		if err != nil {
			return Spec{}, errors.Wrapf(err, "model %s", id)
		}
		spec.Classes = set
	case spec.Kind == detector.KindKeypoint:
		spec.Classes = PoseClasses
	default:
		spec.Classes = COCOClasses
	}
	return spec, nil
}

func (r *Registry) kindOf(id, stem string) detector.Kind {
	if k, ok := r.kinds[id]; ok {
		return k
	}
	if strings.HasSuffix(stem, "-pose") {
		return detector.KindKeypoint
	}
	return detector.KindBox
}
