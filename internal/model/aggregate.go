package model

import (
	"fmt"
)

// OutsideLabel marks tokens that belong to no entity. They are never reported.
const OutsideLabel = "O"

// Aggregate turns raw engine output into predictions in token order. The
// only filter is the "O" label; adjacent tokens with the same label are not
// merged and decoded text is not cleaned up. Boxes are scaled linearly from
// the 0-1000 space to width x height without clamping.
func Aggregate(out *EngineOutput, vocab Vocabulary, width, height int) ([]Prediction, error) {
	n := len(out.TokenIDs)
	if len(out.LabelProbabilities) != n || len(out.Boxes) != n {
		return nil, fmt.Errorf("misaligned engine output: %d ids, %d distributions, %d boxes",
			n, len(out.LabelProbabilities), len(out.Boxes))
	}

	labels := vocab.Labels()
	predictions := make([]Prediction, 0, n)

	for i := 0; i < n; i++ {
		probs := out.LabelProbabilities[i]
		if len(probs) == 0 {
			return nil, fmt.Errorf("token %d has an empty label distribution", i)
		}

		maxIdx, maxVal := argmax(probs)
		if maxIdx >= len(labels) {
			return nil, fmt.Errorf("token %d: label index %d outside vocabulary of %d", i, maxIdx, len(labels))
		}

		label := labels[maxIdx]
		if label == OutsideLabel {
			continue
		}

		predictions = append(predictions, Prediction{
			Label: label,
			Score: float64(maxVal),
			Text:  vocab.DecodeToken(out.TokenIDs[i]),
			BBox:  unnormalizeBox(out.Boxes[i], width, height),
		})
	}

	return predictions, nil
}

// argmax returns the first index holding the largest value.
func argmax(values []float32) (int, float32) {
	maxIdx := 0
	maxVal := values[0]
	for i, v := range values[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return maxIdx, maxVal
}

func unnormalizeBox(b Box, width, height int) [4]float64 {
	w := float64(width)
	h := float64(height)
	return [4]float64{
		w * float64(b[0]) / 1000,
		h * float64(b[1]) / 1000,
		w * float64(b[2]) / 1000,
		h * float64(b[3]) / 1000,
	}
}
