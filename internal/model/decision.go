package model

import "errors"

var ErrEmptyOutput = errors.New("model returned no scores")

// DecideClass reduces raw model output for one sample to a class index.
// A single sigmoid score is thresholded; several scores pick the argmax.
func DecideClass(scores []float32, threshold float32) (int, error) {
	switch len(scores) {
	case 0:
		return 0, ErrEmptyOutput
	case 1:
		if scores[0] > threshold {
			return 1, nil
		}
		return 0, nil
	}

	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx, nil
}
