package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
)

type httpService struct {
	params config.WebhookParameters
	client *http.Client
}

// NewHTTP builds the webhook sink. Any non-2xx response or timeout is a
// delivery failure subject to the dispatcher's retry policy.
func NewHTTP(params config.WebhookParameters) (IService, error) {
	if params.URL == "" {
		return nil, xerrors.New("webhook: empty URL")
	}

	return &httpService{
		params: params,
		client: &http.Client{
			Timeout: time.Duration(params.TimeoutSecs) * time.Second,
		},
	}, nil
}

func (svc *httpService) Name() string {
	return "webhook"
}

func (svc *httpService) Deliver(ctx context.Context, event model.DispatchEvent) error {
	payload := svc.shape(event)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.params.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ppe-detection-system/1.0")

	switch svc.params.AuthType {
	case "basic":
		req.SetBasicAuth(svc.params.Username, svc.params.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+svc.params.BearerToken)
	case "api_key":
		req.Header.Set(svc.params.APIKeyHeader, svc.params.APIKey)
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return xerrors.New(fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

func (svc *httpService) shape(event model.DispatchEvent) map[string]interface{} {
	payload := map[string]interface{}{
		"event_type": event.Type,
		"timestamp":  event.Timestamp.Format(time.RFC3339),
		"camera_id":  event.CameraID,
		"sequence":   event.Sequence,
	}

	switch event.Type {
	case model.EventAlert:
		v := event.Violation
		payload["alert_type"] = "missing_ppe"
		payload["severity"] = v.Severity
		payload["message"] = fmt.Sprintf("missing PPE detected on %s: %s",
			event.CameraName, strings.Join(v.MissingPPE, ", "))
		payload["details"] = map[string]interface{}{
			"missing_ppe": v.MissingPPE,
			"zone":        v.Zone,
			"camera_name": event.CameraName,
		}

	case model.EventStatus:
		payload["status"] = event.Status.Status

	case model.EventHeartbeat:
		payload["status"] = "alive"

	default:
		payload["num_detections"] = len(event.Detections)
		payload["detections"] = event.Detections
		payload["metadata"] = map[string]interface{}{
			"zone":        event.Zone,
			"camera_name": event.CameraName,
			"fps":         event.FPS,
		}
	}

	return payload
}

func (svc *httpService) Close() error {
	svc.client.CloseIdleConnections()
	return nil
}
