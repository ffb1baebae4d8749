//go:build !cgo

package onnxtag

import "github.com/pkg/errors"

// Model is unavailable without cgo.
type Model struct{}

// Load validates the model directory and then fails: onnxruntime needs cgo.
func Load(opts Options) (*Model, error) {
	if _, labelsPath, err := CheckModelDir(opts.ModelDir); err != nil {
		return nil, err
	} else if _, err := LoadLabels(labelsPath); err != nil {
		return nil, err
	}
	return nil, errors.New("onnxtag: built without cgo, onnxruntime is unavailable")
}

func (m *Model) Labels() []string { return nil }

func (m *Model) Tag(string, float64) ([]string, error) {
	return nil, errors.New("onnxtag: built without cgo")
}

func (m *Model) Close() error { return nil }
