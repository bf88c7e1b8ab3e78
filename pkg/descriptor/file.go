package descriptor

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
)

// KeyPoint is the subset of keypoint attributes persisted next to descriptors
type KeyPoint struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Size     float64 `yaml:"size"`
	Angle    float64 `yaml:"angle"`
	Response float64 `yaml:"response"`
	Octave   int     `yaml:"octave"`
}

// Features is a descriptor set plus its optional keypoints
type Features struct {
	KeyPoints   []KeyPoint
	Descriptors Matrix
}

// fileDoc is the on-disk layout of a descriptor file
type fileDoc struct {
	Kind      string     `yaml:"kind"`
	Rows      int        `yaml:"rows"`
	Cols      int        `yaml:"cols"`
	Data      []float64  `yaml:"data,flow"`
	KeyPoints []KeyPoint `yaml:"keypoints,omitempty"`
}

// SaveFeatures writes descriptors (and keypoints, if any) to a .yaml.gz file
func SaveFeatures(path string, f Features) error {
	if f.Descriptors == nil {
		return fmt.Errorf("no descriptors to save")
	}
	if len(f.KeyPoints) > 0 && len(f.KeyPoints) != f.Descriptors.Rows() {
		return fmt.Errorf("keypoints (%d) and descriptors (%d) count mismatch",
			len(f.KeyPoints), f.Descriptors.Rows())
	}

	doc := fileDoc{
		Kind:      f.Descriptors.Kind().String(),
		Rows:      f.Descriptors.Rows(),
		Cols:      f.Descriptors.Cols(),
		KeyPoints: f.KeyPoints,
	}

	doc.Data = make([]float64, 0, doc.Rows*doc.Cols)
	switch m := f.Descriptors.(type) {
	case *Binary:
		for _, b := range m.Data() {
			doc.Data = append(doc.Data, float64(b))
		}
	case *Real:
		for i := 0; i < m.Rows(); i++ {
			doc.Data = append(doc.Data, m.Row(i)...)
		}
	default:
		return fmt.Errorf("unsupported descriptor container %T", f.Descriptors)
	}

	return yamlgz.WriteFile(path, doc)
}

// SaveDescriptors writes a descriptor set without keypoints
func SaveDescriptors(path string, m Matrix) error {
	return SaveFeatures(path, Features{Descriptors: m})
}

// LoadFeatures reads a descriptor file written by SaveFeatures
func LoadFeatures(path string) (Features, error) {
	var doc fileDoc
	if err := yamlgz.ReadFile(path, &doc); err != nil {
		return Features{}, err
	}

	kind, err := ParseKind(doc.Kind)
	if err != nil {
		return Features{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := CheckShape(doc.Rows, doc.Cols); err != nil {
		return Features{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(doc.Data) != doc.Rows*doc.Cols {
		return Features{}, fmt.Errorf("%s: data length %d does not match shape %dx%d",
			path, len(doc.Data), doc.Rows, doc.Cols)
	}
	if len(doc.KeyPoints) > 0 && len(doc.KeyPoints) != doc.Rows {
		return Features{}, fmt.Errorf("%s: keypoints (%d) and descriptors (%d) count mismatch",
			path, len(doc.KeyPoints), doc.Rows)
	}

	var m Matrix
	switch kind {
	case BinaryKind:
		data := make([]byte, len(doc.Data))
		for i, v := range doc.Data {
			if v < 0 || v > 255 || v != float64(int(v)) {
				return Features{}, fmt.Errorf("%s: value %v at %d is not a byte", path, v, i)
			}
			data[i] = byte(v)
		}
		m, err = NewBinary(doc.Rows, doc.Cols, data)
	case RealKind:
		m, err = NewReal(doc.Rows, doc.Cols, doc.Data)
	}
	if err != nil {
		return Features{}, fmt.Errorf("%s: %w", path, err)
	}

	return Features{KeyPoints: doc.KeyPoints, Descriptors: m}, nil
}

// LoadDescriptors reads only the descriptor matrix of a descriptor file
func LoadDescriptors(path string) (Matrix, error) {
	f, err := LoadFeatures(path)
	if err != nil {
		return nil, err
	}
	return f.Descriptors, nil
}
