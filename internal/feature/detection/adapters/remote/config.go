package remote

import "time"

// Config holds the TensorFlow Serving endpoint settings.
type Config struct {
	BaseURL   string        // e.g. http://tf-serving:8501
	ModelName string        // served model name
	Timeout   time.Duration // per-request timeout
}

// PredictURL returns the REST predict endpoint for the model.
func (c Config) PredictURL() string {
	return c.BaseURL + "/v1/models/" + c.ModelName + ":predict"
}
