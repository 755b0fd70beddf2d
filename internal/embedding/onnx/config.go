package onnx

// Config locates the model, its tokenizer and the runtime library.
type Config struct {
	ModelPath     string `json:"model_path" yaml:"model_path"`
	TokenizerPath string `json:"tokenizer_path" yaml:"tokenizer_path"`
	LibraryPath   string `json:"library_path" yaml:"library_path"`
	Dimensions    int    `json:"dimensions" yaml:"dimensions"`
}
