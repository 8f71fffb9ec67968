package gesture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

var (
	ErrClassifierUnavailable = errors.New("gesture classifier unavailable")
	ErrNoGesture             = errors.New("no known gesture in frame")
)

// Classifier labels a single camera frame.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Classification, error)
}

type prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type predictions struct {
	Predictions []prediction `json:"predictions"`
	Success     bool         `json:"success"`
}

// HTTPClassifier posts frames to a model server as a multipart "image" field
// and reads back {"success":..., "predictions":[{"label","confidence"}]}.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Available checks once that the model server answers. An empty URL means no
// model was configured.
func (c *HTTPClassifier) Available(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("%w: no classifier url configured", ErrClassifierUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClassifier) Classify(ctx context.Context, image []byte) (Classification, error) {
	body := bytes.NewBuffer(nil)
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("image", "frame.jpeg")
	if err != nil {
		return Classification{}, fmt.Errorf("building form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return Classification{}, fmt.Errorf("building form: %w", err)
	}
	// must close before sending or the content length is wrong
	if err := form.Close(); err != nil {
		return Classification{}, fmt.Errorf("building form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := c.client.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 || resp.StatusCode < 200 {
		return Classification{}, fmt.Errorf("%w: non-2xx code received: %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var results predictions
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Classification{}, fmt.Errorf("decoding classifier result: %w", err)
	}
	return best(results.Predictions)
}

// best picks the most confident prediction that is one of our labels.
func best(preds []prediction) (Classification, error) {
	var out Classification
	found := false
	for _, p := range preds {
		label, err := ParseLabel(p.Label)
		if err != nil {
			continue
		}
		if !found || p.Confidence > out.Confidence {
			out = Classification{Label: label, Confidence: clampConfidence(p.Confidence)}
			found = true
		}
	}
	if !found {
		return Classification{}, ErrNoGesture
	}
	return out, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
