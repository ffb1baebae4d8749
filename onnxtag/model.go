//go:build cgo

package onnxtag

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/stevecastle/wallkit/errs"
)

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libPath == "" {
			libPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrap(err, "initialize onnxruntime")
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// Model is a loaded tagger: one session with its input and output tensors
// allocated once and reused for every image. Tag calls are serialized.
type Model struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	closed  bool
}

// Load validates the model directory, reads the label list and creates the
// inference session.
func Load(opts Options) (*Model, error) {
	modelPath, labelsPath, err := CheckModelDir(opts.ModelDir)
	if err != nil {
		return nil, err
	}
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}

	if err := acquireEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}
	m, err := newModel(modelPath, labels)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	return m, nil
}

func newModel(modelPath string, labels []string) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errs.Malformed("onnxtag.Load", modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errs.Malformed("onnxtag.Load", modelPath, errors.New("model has no inputs or outputs"))
	}
	in, out := inputs[0], outputs[0]

	dims := in.Dimensions
	if len(dims) != 4 || !fits(dims[1], InputSize) || !fits(dims[2], InputSize) || !fits(dims[3], 3) {
		return nil, errs.Malformed("onnxtag.Load", modelPath,
			errors.Errorf("input %q has shape %v, want [1 %d %d 3]", in.Name, dims, InputSize, InputSize))
	}
	classes := int64(len(labels))
	if od := out.Dimensions; len(od) > 0 && od[len(od)-1] > 0 {
		classes = od[len(od)-1]
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, InputSize, InputSize, 3))
	if err != nil {
		return nil, errors.Wrap(err, "allocate input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, classes))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "allocate output tensor")
	}
	session, err := ort.NewAdvancedSession(modelPath,
		[]string{in.Name}, []string{out.Name},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errs.Malformed("onnxtag.Load", modelPath, err)
	}
	return &Model{session: session, input: input, output: output, labels: labels}, nil
}

func fits(dim, want int64) bool { return dim <= 0 || dim == want }

// Labels returns the label list in output order.
func (m *Model) Labels() []string { return m.labels }

// Tag runs the model on the image at imagePath and returns the labels whose
// probability is at least threshold.
func (m *Model) Tag(imagePath string, threshold float64) ([]string, error) {
	data, err := Preprocess(imagePath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("onnxtag: model is closed")
	}
	copy(m.input.GetData(), data)
	if err := m.session.Run(); err != nil {
		return nil, errors.Wrapf(err, "run model on %s", imagePath)
	}
	return SelectLabels(m.output.GetData(), m.labels, threshold), nil
}

// Close releases the session and tensors.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	err := m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
	releaseEnvironment()
	return err
}
