package model

// Box is a bounding box in the 0-1000 normalized space: x0, y0, x1, y1.
type Box [4]int

// EngineOutput is the per-token result of one inference call. TokenIDs,
// LabelProbabilities and Boxes are index-aligned. Width and Height are the
// pixel size of the analyzed image and scale the boxes back out of the
// 0-1000 space.
type EngineOutput struct {
	TokenIDs           []int
	LabelProbabilities [][]float32
	Boxes              []Box
	Width              int
	Height             int
}

// Prediction is one labeled token in pixel space.
type Prediction struct {
	Label string     `json:"label"`
	Score float64    `json:"score"`
	Text  string     `json:"text"`
	BBox  [4]float64 `json:"bbox"`
}

type PredictionResponse struct {
	Predictions []Prediction `json:"predictions"`
}
