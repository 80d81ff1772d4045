package model

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Dense is one affine layer y = Wx + b.
type Dense struct {
	W *mat.Dense
	B *mat.VecDense
}

func newDense(out, in int, std float64, rng *rand.Rand) Dense {
	w := make([]float64, out*in)
	for i := range w {
		w[i] = rng.NormFloat64() * std
	}
	return Dense{W: mat.NewDense(out, in, w), B: mat.NewVecDense(out, nil)}
}

func (d Dense) apply(x *mat.VecDense) *mat.VecDense {
	var y mat.VecDense
	y.MulVec(d.W, x)
	y.AddVec(&y, d.B)
	return &y
}

// Head is the untrained classification head placed on top of the encoder's
// first-token hidden state. DistilBERT adds a hidden×hidden pre-classifier
// with ReLU before the num_labels×hidden classifier.
type Head struct {
	Pre        *Dense
	Classifier Dense
}

// NewHead initialises a head with weights N(0, std) and zero biases.
func NewHead(hidden, numLabels int, preClassifier bool, std float64, seed uint64) *Head {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	h := &Head{}
	if preClassifier {
		pre := newDense(hidden, hidden, std, rng)
		h.Pre = &pre
	}
	h.Classifier = newDense(numLabels, hidden, std, rng)
	return h
}

// NumLabels returns the output dimension.
func (h *Head) NumLabels() int {
	r, _ := h.Classifier.W.Dims()
	return r
}

// HiddenSize returns the expected input dimension.
func (h *Head) HiddenSize() int {
	_, c := h.Classifier.W.Dims()
	return c
}

// Logits maps one hidden state to num_labels unnormalised scores.
func (h *Head) Logits(hidden []float64) ([]float64, error) {
	if len(hidden) != h.HiddenSize() {
		return nil, fmt.Errorf("hidden state has %d values, head expects %d", len(hidden), h.HiddenSize())
	}
	x := mat.NewVecDense(len(hidden), append([]float64(nil), hidden...))
	if h.Pre != nil {
		x = h.Pre.apply(x)
		for i := 0; i < x.Len(); i++ {
			x.SetVec(i, max(0, x.AtVec(i)))
		}
	}
	y := h.Classifier.apply(x)
	out := make([]float64, y.Len())
	for i := range out {
		out[i] = y.AtVec(i)
	}
	return out, nil
}

type denseJSON struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Weight []float64 `json:"weight"`
	Bias   []float64 `json:"bias"`
}

func (d Dense) toJSON() denseJSON {
	r, c := d.W.Dims()
	out := denseJSON{Rows: r, Cols: c, Weight: make([]float64, 0, r*c), Bias: make([]float64, r)}
	for i := 0; i < r; i++ {
		out.Weight = append(out.Weight, mat.Row(nil, i, d.W)...)
		out.Bias[i] = d.B.AtVec(i)
	}
	return out
}

func (j denseJSON) toDense() (Dense, error) {
	if j.Rows <= 0 || j.Cols <= 0 || len(j.Weight) != j.Rows*j.Cols || len(j.Bias) != j.Rows {
		return Dense{}, fmt.Errorf("malformed layer %dx%d with %d weights and %d biases", j.Rows, j.Cols, len(j.Weight), len(j.Bias))
	}
	return Dense{W: mat.NewDense(j.Rows, j.Cols, j.Weight), B: mat.NewVecDense(j.Rows, j.Bias)}, nil
}

type headJSON struct {
	PreClassifier *denseJSON `json:"pre_classifier,omitempty"`
	Classifier    denseJSON  `json:"classifier"`
}

// MarshalJSON stores layers as row-major weight arrays.
func (h *Head) MarshalJSON() ([]byte, error) {
	out := headJSON{Classifier: h.Classifier.toJSON()}
	if h.Pre != nil {
		pre := h.Pre.toJSON()
		out.PreClassifier = &pre
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a head written by MarshalJSON.
func (h *Head) UnmarshalJSON(b []byte) error {
	var in headJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	cls, err := in.Classifier.toDense()
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	h.Classifier, h.Pre = cls, nil
	if in.PreClassifier != nil {
		pre, err := in.PreClassifier.toDense()
		if err != nil {
			return fmt.Errorf("pre_classifier: %w", err)
		}
		h.Pre = &pre
	}
	return nil
}
