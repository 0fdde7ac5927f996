package layoutlm

// Metadata describes an exported token-classification graph. It is read
// from model_metadata.json next to the ONNX file.
type Metadata struct {
	Labels            []string `json:"labels"`
	InputNames        []string `json:"input_names"`
	OutputName        string   `json:"output_name"`
	MaxSequenceLength int      `json:"max_sequence_length"`
	MaxImageSide      int      `json:"max_image_side"`
	DoLowerCase       bool     `json:"do_lower_case"`
}

func (m *Metadata) applyDefaults() {
	if len(m.InputNames) == 0 {
		m.InputNames = []string{"input_ids", "bbox", "attention_mask", "token_type_ids"}
	}
	if m.OutputName == "" {
		m.OutputName = "logits"
	}
	if m.MaxSequenceLength <= 0 {
		m.MaxSequenceLength = 512
	}
	if m.MaxImageSide <= 0 {
		m.MaxImageSide = 2000
	}
}
