package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is the full, zero-based list of labels a model can emit.
type OutputClassSet struct {
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a set from names in index order.
func NewOutputClassSet(names ...string) *OutputClassSet {
	s := &OutputClassSet{Classes: make([]OutputClass, len(names))}
	for i, n := range names {
		s.Classes[i] = OutputClass{Index: i, Name: n}
	}
	s.BuildNameIndexMap()
	return s
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the label for idx, or "class_<idx>" when idx is out of range.
func (s *OutputClassSet) Name(idx int) string {
	if idx >= 0 && idx < len(s.Classes) {
		return s.Classes[idx].Name
	}
	return fmt.Sprintf("class_%d", idx)
}

// Index returns the index of name.
func (s *OutputClassSet) Index(name string) (int, bool) {
	idx, ok := s.nameToIdx[name]
	return idx, ok
}

// LoadNames reads a label file with one class name per line, in index order.
// Blank lines are skipped.
func LoadNames(path string) (*OutputClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open class names")
	}
	defer f.Close()
	return ReadNames(f)
}

// ReadNames is LoadNames over a reader.
func ReadNames(r io.Reader) (*OutputClassSet, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if n := strings.TrimSpace(sc.Text()); n != "" {
			names = append(names, n)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read class names")
	}
	if len(names) == 0 {
		return nil, errors.New("class names file is empty")
	}
	return NewOutputClassSet(names...), nil
}

// Well-known COCO indices used by the decision rules.
const (
	ClassPerson = 0
	ClassCar    = 2
	ClassBus    = 5
	ClassTruck  = 7
)

// COCOClasses is the 80-class COCO label list in the zero-based order YOLO
// models emit.
var COCOClasses = NewOutputClassSet(
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
)

// PoseClasses is the single-class label list of YOLO pose models.
var PoseClasses = NewOutputClassSet("person")
