package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/JSNN15/PPE-Detection-System/model"
)

type camerasFile struct {
	Cameras []model.Camera `yaml:"cameras"`
}

type ppeFile struct {
	PPEDetection PPEConfig `yaml:"ppe_detection"`
	Tracking     struct {
		WindowFrames         int     `yaml:"window_frames"`
		PresenceRatio        float64 `yaml:"presence_ratio"`
		MaxSilenceSeconds    int     `yaml:"max_silence_seconds"`
		GovernanceIntervalMs int     `yaml:"governance_interval_ms"`
		ProcessEveryNth      int     `yaml:"process_every_n_frames"`
		ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	} `yaml:"tracking"`
	Alerting struct {
		CooldownSeconds  int `yaml:"cooldown_seconds"`
		HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	} `yaml:"alerting"`
	Zones []ZoneConfig `yaml:"zones"`
}

type yamlService struct {
	inputFolder string
	cameras     []model.Camera
	ppe         PPEConfig
	tracking    struct {
		windowFrames         int
		presenceThreshold    int
		maxSilenceSeconds    int
		governanceIntervalMs int
		processEveryNth      int
		confidenceThreshold  float64
	}
	cooldownSeconds  int
	heartbeatSeconds int
}

// NewYaml loads cameras.yaml and ppe.yaml from the input folder once.
// The loaded structures are read-only for the process lifetime.
func NewYaml(inputFolder string) (IService, error) {
	svc := &yamlService{inputFolder: inputFolder}

	var cams camerasFile
	if err := readYaml(fmt.Sprintf("%s/cameras.yaml", inputFolder), &cams); err != nil {
		return nil, err
	}
	svc.cameras = cams.Cameras

	var ppe ppeFile
	if err := readYaml(fmt.Sprintf("%s/ppe.yaml", inputFolder), &ppe); err != nil {
		return nil, err
	}
	svc.ppe = ppe.PPEDetection
	svc.ppe.Zones = ppe.Zones

	svc.tracking.windowFrames = ppe.Tracking.WindowFrames
	if svc.tracking.windowFrames <= 0 {
		svc.tracking.windowFrames = 15
	}
	ratio := ppe.Tracking.PresenceRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.6
	}
	svc.tracking.presenceThreshold = int(float64(svc.tracking.windowFrames)*ratio + 0.999999)
	svc.tracking.maxSilenceSeconds = defaultInt(ppe.Tracking.MaxSilenceSeconds, 10)
	svc.tracking.governanceIntervalMs = defaultInt(ppe.Tracking.GovernanceIntervalMs, 500)
	svc.tracking.processEveryNth = defaultInt(ppe.Tracking.ProcessEveryNth, 2)
	svc.tracking.confidenceThreshold = ppe.Tracking.ConfidenceThreshold
	if svc.tracking.confidenceThreshold <= 0 {
		svc.tracking.confidenceThreshold = 0.5
	}
	svc.cooldownSeconds = defaultInt(ppe.Alerting.CooldownSeconds, 60)
	svc.heartbeatSeconds = defaultInt(ppe.Alerting.HeartbeatSeconds, 60)

	return svc, nil
}

func readYaml(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.New(fmt.Sprintf("reading %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return xerrors.New(fmt.Sprintf("unmarshalling %s: %v", path, err))
	}
	return nil
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (svc *yamlService) GetModeMaxShutdownTime() int {
	return envInt("MODE_MAX_SHUTDOWN_SECONDS", 5)
}

func (svc *yamlService) GetInputFolder() string {
	return svc.inputFolder
}

func (svc *yamlService) RetrieveCameras() ([]model.Camera, error) {
	return svc.cameras, nil
}

func (svc *yamlService) GetPPEConfig() PPEConfig {
	return svc.ppe
}

func (svc *yamlService) GetWindowFrames() int {
	return svc.tracking.windowFrames
}

func (svc *yamlService) GetPresenceThreshold() int {
	return svc.tracking.presenceThreshold
}

func (svc *yamlService) GetMaxSilenceSeconds() int {
	return svc.tracking.maxSilenceSeconds
}

func (svc *yamlService) GetGovernanceIntervalMs() int {
	return svc.tracking.governanceIntervalMs
}

func (svc *yamlService) GetProcessEveryNthFrame() int {
	return svc.tracking.processEveryNth
}

func (svc *yamlService) GetFrameChannelDepth() int {
	return envInt("FRAME_CHANNEL_DEPTH", 8)
}

func (svc *yamlService) GetDefaultConfidenceThreshold() float64 {
	return svc.tracking.confidenceThreshold
}

func (svc *yamlService) GetInferenceTimeoutMs() int {
	return envInt("INFERENCE_TIMEOUT_MS", 2000)
}

func (svc *yamlService) GetAlertCooldownSeconds() int {
	return svc.cooldownSeconds
}

func (svc *yamlService) GetHeartbeatIntervalSeconds() int {
	return svc.heartbeatSeconds
}

func (svc *yamlService) GetSinkQueueDepth() int {
	return envInt("SINK_QUEUE_DEPTH", 256)
}

func (svc *yamlService) GetSinkRetryAttempts() int {
	return envInt("SINK_RETRY_ATTEMPTS", 3)
}

func (svc *yamlService) GetSinkRetryBaseDelayMs() int {
	return envInt("SINK_RETRY_BASE_DELAY_MS", 250)
}

func (svc *yamlService) GetBusParameters() BusParameters {
	return BusParameters{
		Enabled:     envBool("MQTT_ENABLED"),
		BrokerHost:  envString("MQTT_BROKER_HOST", "localhost"),
		BrokerPort:  envInt("MQTT_BROKER_PORT", 1883),
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
		TopicPrefix: envString("MQTT_TOPIC_PREFIX", "ppe_detection"),
		QoS:         byte(envInt("MQTT_QOS", 1)),
	}
}

func (svc *yamlService) GetWebhookParameters() WebhookParameters {
	return WebhookParameters{
		Enabled:       envBool("WEBHOOK_ENABLED"),
		URL:           os.Getenv("WEBHOOK_URL"),
		TimeoutSecs:   envInt("WEBHOOK_TIMEOUT_SECONDS", 10),
		RetryAttempts: envInt("WEBHOOK_RETRY_ATTEMPTS", 3),
		AuthType:      envString("WEBHOOK_AUTH_TYPE", "none"),
		Username:      os.Getenv("WEBHOOK_USERNAME"),
		Password:      os.Getenv("WEBHOOK_PASSWORD"),
		BearerToken:   os.Getenv("WEBHOOK_BEARER_TOKEN"),
		APIKey:        os.Getenv("WEBHOOK_API_KEY"),
		APIKeyHeader:  envString("WEBHOOK_API_KEY_HEADER", "X-API-Key"),
	}
}

func (svc *yamlService) GetExportParameters() ExportParameters {
	return ExportParameters{
		Enabled: envBool("CSV_EXPORT_ENABLED"),
		Path:    envString("CSV_EXPORT_PATH", "./exports"),
	}
}

func (svc *yamlService) GetModelPath() string {
	return envString("YOLO_MODEL_PATH", "./models/ppe_detector.onnx")
}

func (svc *yamlService) GetClassNamesPath() string {
	return envString("YOLO_CLASS_NAMES_PATH", "./models/ppe.names")
}

func (svc *yamlService) GetHTTPAddr() string {
	return envString("HTTP_ADDR", ":8080")
}

func (svc *yamlService) GetAgentPeriodicTimeout() int {
	return envInt("AGENT_PERIODIC_TIMEOUT_SECONDS", 30)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}
