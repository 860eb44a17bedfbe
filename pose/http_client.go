package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"fall-detection/fall"
)

// ErrServiceUnavailable is returned when the pose service cannot be reached.
var ErrServiceUnavailable = errors.New("pose service unavailable")

// HTTPClient communicates with the MediaPipe pose estimation service
type HTTPClient struct {
	serviceURL string
	client     *http.Client
}

// DetectResponse represents the response from the pose service
type DetectResponse struct {
	Detected  bool            `json:"detected"`
	Landmarks []fall.Landmark `json:"landmarks"`
}

// NewHTTPClient creates a new pose service client
func NewHTTPClient(serviceURL string) *HTTPClient {
	if serviceURL == "" {
		serviceURL = "http://localhost:5003"
	}

	return &HTTPClient{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// HealthCheck verifies the pose service is running
func (hc *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.serviceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pose service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// Detect sends one JPEG frame to the service and returns the joints it found.
// A nil JointSet means no person was detected.
func (hc *HTTPClient) Detect(ctx context.Context, frame fall.Frame) (fall.JointSet, error) {
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("frame %d has no image data", frame.Index)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("frame", fmt.Sprintf("frame_%06d.jpg", frame.Index))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return nil, fmt.Errorf("failed to write frame data: %w", err)
	}
	if err := writer.WriteField("width", strconv.Itoa(frame.Width)); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.WriteField("height", strconv.Itoa(frame.Height)); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.serviceURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := hc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pose service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var detectResp DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&detectResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !detectResp.Detected {
		return nil, nil
	}
	return fall.JointSetFromLandmarks(detectResp.Landmarks), nil
}
