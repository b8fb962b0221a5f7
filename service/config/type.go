package config

import "github.com/JSNN15/PPE-Detection-System/model"

type PPEClass struct {
	Name          string  `yaml:"name"`
	Enabled       bool    `yaml:"enabled"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type ZoneConfig struct {
	ZoneID           string   `yaml:"zone_id"`
	MandatoryPPE     []string `yaml:"mandatory_ppe"`
	ConditionalPPE   []string `yaml:"conditional_ppe"`
	SeverityOverride string   `yaml:"severity_override"`
}

type PPEConfig struct {
	Mandatory   []PPEClass   `yaml:"mandatory"`
	Conditional []PPEClass   `yaml:"conditional"`
	Zones       []ZoneConfig `yaml:"zones"`
}

type BusParameters struct {
	Enabled     bool
	BrokerHost  string
	BrokerPort  int
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

type WebhookParameters struct {
	Enabled       bool
	URL           string
	TimeoutSecs   int
	RetryAttempts int
	AuthType      string // none | basic | bearer | api_key
	Username      string
	Password      string
	BearerToken   string
	APIKey        string
	APIKeyHeader  string
}

type ExportParameters struct {
	Enabled bool
	Path    string
}

type IService interface {
	GetModeMaxShutdownTime() int
	GetInputFolder() string

	RetrieveCameras() ([]model.Camera, error)
	GetPPEConfig() PPEConfig

	// Tracker and governance knobs.
	GetWindowFrames() int
	GetPresenceThreshold() int
	GetMaxSilenceSeconds() int
	GetGovernanceIntervalMs() int
	GetProcessEveryNthFrame() int
	GetFrameChannelDepth() int
	GetDefaultConfidenceThreshold() float64
	GetInferenceTimeoutMs() int

	// Alerting.
	GetAlertCooldownSeconds() int
	GetHeartbeatIntervalSeconds() int

	// Dispatcher.
	GetSinkQueueDepth() int
	GetSinkRetryAttempts() int
	GetSinkRetryBaseDelayMs() int

	// Sinks.
	GetBusParameters() BusParameters
	GetWebhookParameters() WebhookParameters
	GetExportParameters() ExportParameters

	// Detector backend.
	GetModelPath() string
	GetClassNamesPath() string

	// Process surface.
	GetHTTPAddr() string
	GetAgentPeriodicTimeout() int
}
