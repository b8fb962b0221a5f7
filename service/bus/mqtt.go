package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
)

type mqttService struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMqtt connects to the broker and returns the bus sink. Connection loss
// is handled by paho's auto-reconnect; a disconnected client surfaces as
// delivery errors the dispatcher retries.
func NewMqtt(params config.BusParameters) (IService, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", params.BrokerHost, params.BrokerPort)).
		SetClientID(fmt.Sprintf("ppe-detector-%s", uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectTimeout(10 * time.Second)

	if params.Username != "" {
		opts.SetUsername(params.Username)
		opts.SetPassword(params.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, xerrors.New(fmt.Sprintf("connecting to broker %s:%d: %v",
			params.BrokerHost, params.BrokerPort, token.Error()))
	}

	return &mqttService{
		client: client,
		prefix: strings.TrimSuffix(params.TopicPrefix, "/"),
		qos:    params.QoS,
	}, nil
}

func (svc *mqttService) Name() string {
	return "mqtt"
}

func (svc *mqttService) Deliver(ctx context.Context, event model.DispatchEvent) error {
	topic, qos, retain, payload := svc.shape(event)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	token := svc.client.Publish(topic, qos, retain, body)

	deadline, ok := ctx.Deadline()
	wait := 5 * time.Second
	if ok {
		wait = time.Until(deadline)
	}
	if !token.WaitTimeout(wait) {
		return xerrors.New(fmt.Sprintf("publish to %s timed out", topic))
	}
	return token.Error()
}

// shape maps the event union onto the bus topic scheme:
// prefix/{camera}/detections, prefix/alerts/{severity},
// prefix/{camera}/status, prefix/system/heartbeat.
func (svc *mqttService) shape(event model.DispatchEvent) (string, byte, bool, map[string]interface{}) {
	ts := event.Timestamp.Format(time.RFC3339)

	switch event.Type {
	case model.EventAlert:
		v := event.Violation
		return fmt.Sprintf("%s/alerts/%s", svc.prefix, v.Severity), 2, true, map[string]interface{}{
			"timestamp":  ts,
			"camera_id":  event.CameraID,
			"alert_type": "missing_ppe",
			"severity":   v.Severity,
			"message":    alertMessage(event.CameraName, v),
			"sequence":   event.Sequence,
			"details": map[string]interface{}{
				"missing_ppe": v.MissingPPE,
				"zone":        v.Zone,
			},
		}

	case model.EventStatus:
		return fmt.Sprintf("%s/%s/status", svc.prefix, event.CameraID), 1, true, map[string]interface{}{
			"timestamp": ts,
			"camera_id": event.CameraID,
			"status":    event.Status.Status,
			"sequence":  event.Sequence,
		}

	case model.EventHeartbeat:
		return fmt.Sprintf("%s/system/heartbeat", svc.prefix), 0, false, map[string]interface{}{
			"timestamp": ts,
			"camera_id": event.CameraID,
			"status":    "alive",
			"sequence":  event.Sequence,
		}

	default:
		return fmt.Sprintf("%s/%s/detections", svc.prefix, event.CameraID), svc.qos, false, map[string]interface{}{
			"timestamp":      ts,
			"camera_id":      event.CameraID,
			"num_detections": len(event.Detections),
			"detections":     event.Detections,
			"sequence":       event.Sequence,
			"metadata": map[string]interface{}{
				"zone": event.Zone,
				"fps":  event.FPS,
			},
		}
	}
}

func alertMessage(cameraName string, v *model.Violation) string {
	return fmt.Sprintf("missing PPE detected on %s: %s", cameraName, strings.Join(v.MissingPPE, ", "))
}

func (svc *mqttService) Close() error {
	svc.client.Disconnect(250)
	return nil
}
