package onnxtag

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/stevecastle/wallkit/errs"
)

// LabelColumn is the header of the column holding label names.
const LabelColumn = "name"

// LoadLabels reads the label list CSV at path. Labels come from the column
// headed LabelColumn, wherever it is. Rows keep their position so that label
// i matches output i; rows with an empty name stay as "" and are never
// emitted. A missing column or a list without any name is Malformed.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("onnxtag.LoadLabels", path)
		}
		return nil, errors.Wrapf(err, "open label list %s", path)
	}
	defer f.Close()
	return ParseLabels(f, path)
}

// ParseLabels reads a label list from r. name is used in error messages.
func ParseLabels(r io.Reader, name string) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errs.Malformed("onnxtag.LoadLabels", name, errors.New("label list is empty"))
		}
		return nil, errs.Malformed("onnxtag.LoadLabels", name, err)
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), LabelColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errs.Malformed("onnxtag.LoadLabels", name, errors.Errorf("no %q column in header", LabelColumn))
	}

	var labels []string
	named := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Malformed("onnxtag.LoadLabels", name, err)
		}
		label := ""
		if col < len(rec) {
			label = strings.TrimSpace(rec[col])
		}
		if label != "" {
			named++
		}
		labels = append(labels, label)
	}
	if named == 0 {
		return nil, errs.Malformed("onnxtag.LoadLabels", name, errors.New("label list has no labels"))
	}
	return labels, nil
}

// SelectLabels returns the labels whose probability meets threshold, in
// label-list order. The comparison is done in the model's float32 precision. Extra probabilities or labels beyond the shorter of the
// two lists are ignored.
func SelectLabels(probs []float32, labels []string, threshold float64) []string {
	n := min(len(probs), len(labels))
	out := []string{}
	for i := 0; i < n; i++ {
		if labels[i] == "" {
			continue
		}
		if probs[i] >= float32(threshold) {
			out = append(out, labels[i])
		}
	}
	return out
}
