package inference

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Prediction is the model service's answer for one scan.
type Prediction struct {
	ModelName          string             `json:"model_name"`
	PredictedClass     string             `json:"predicted_class"`
	Confidence         float64            `json:"confidence"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
}

// Client talks to the external model-serving endpoint that classifies scan
// images. One model is deployed per dataset ("tb", "lung_cancer"); the model
// name selects which one handles the request.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(60 * time.Second),
	}
}

// Predict submits one image for classification by the named model.
func (c *Client) Predict(ctx context.Context, model, filename string, image []byte) (Prediction, error) {
	var prediction Prediction

	res, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(image)).
		SetResult(&prediction).
		Post(fmt.Sprintf("/predict/%s", model))
	if err != nil {
		return Prediction{}, fmt.Errorf("calling model service: %w", err)
	}
	if res.IsError() {
		return Prediction{}, fmt.Errorf("model service returned status %d: %s", res.StatusCode(), res.String())
	}

	return prediction, nil
}
