package publishers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samvad-hq/pingwatch/internal/registryfile"
)

// Supported publisher types.
const (
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"
)

const defaultWebhookTimeoutSeconds = 5

// PublisherConfig declares one sink. Only the block matching Type is read.
type PublisherConfig struct {
	ID      string                 `json:"id" yaml:"id"`
	Type    string                 `json:"type" yaml:"type"`
	Enabled *bool                  `json:"enabled" yaml:"enabled"`
	HTTP    *HTTPPublisherConfig   `json:"http" yaml:"http"`
	SQS     *SQSPublisherConfig    `json:"sqs" yaml:"sqs"`
	SNS     *SNSPublisherConfig    `json:"sns" yaml:"sns"`
	PubSub  *PubSubPublisherConfig `json:"pubsub" yaml:"pubsub"`
}

// HTTPPublisherConfig posts events to a webhook.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// SQSPublisherConfig sends events to a queue. Queues ending in .fifo are
// grouped by target.
type SQSPublisherConfig struct {
	QueueURL string `json:"uri" yaml:"uri"`
	Region   string `json:"region" yaml:"region"`
}

// SNSPublisherConfig publishes events to a topic.
type SNSPublisherConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
	Region   string `json:"region" yaml:"region"`
}

// PubSubPublisherConfig publishes events to a GCP Pub/Sub topic.
type PubSubPublisherConfig struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	Topic     string `json:"topic" yaml:"topic"`
}

// IsEnabled reports the enabled flag, which defaults to true.
func (c PublisherConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// normalized trims every field, applies defaults and checks the block that
// matches the type.
func (c PublisherConfig) normalized() (PublisherConfig, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.ID == "" {
		return c, errors.New("id is required")
	}

	switch c.Type {
	case TypeHTTP:
		if c.HTTP == nil {
			return c, c.missing()
		}
		h := *c.HTTP
		h.URL = strings.TrimSpace(h.URL)
		if h.URL == "" {
			return c, c.required("http.url")
		}
		if u, err := url.Parse(h.URL); err != nil || u.Host == "" {
			return c, fmt.Errorf("http.url %q is not an absolute url for publisher %q", h.URL, c.ID)
		}
		if h.Method = strings.ToUpper(strings.TrimSpace(h.Method)); h.Method == "" {
			h.Method = http.MethodPost
		}
		if h.TimeoutSeconds < 0 {
			return c, fmt.Errorf("http.timeout_seconds must not be negative for publisher %q", c.ID)
		}
		if h.TimeoutSeconds == 0 {
			h.TimeoutSeconds = defaultWebhookTimeoutSeconds
		}
		h.Headers = cleanHeaders(h.Headers)
		c.HTTP = &h
	case TypeSQS:
		if c.SQS == nil {
			return c, c.missing()
		}
		q := SQSPublisherConfig{QueueURL: strings.TrimSpace(c.SQS.QueueURL), Region: strings.TrimSpace(c.SQS.Region)}
		if q.QueueURL == "" {
			return c, c.required("sqs.uri")
		}
		if q.Region == "" {
			return c, c.required("sqs.region")
		}
		c.SQS = &q
	case TypeSNS:
		if c.SNS == nil {
			return c, c.missing()
		}
		n := SNSPublisherConfig{TopicARN: strings.TrimSpace(c.SNS.TopicARN), Region: strings.TrimSpace(c.SNS.Region)}
		if n.TopicARN == "" {
			return c, c.required("sns.topic_arn")
		}
		if n.Region == "" {
			return c, c.required("sns.region")
		}
		c.SNS = &n
	case TypePubSub:
		if c.PubSub == nil {
			return c, c.missing()
		}
		p := PubSubPublisherConfig{ProjectID: strings.TrimSpace(c.PubSub.ProjectID), Topic: strings.TrimSpace(c.PubSub.Topic)}
		if p.ProjectID == "" {
			return c, c.required("pubsub.project_id")
		}
		if p.Topic == "" {
			return c, c.required("pubsub.topic")
		}
		c.PubSub = &p
	case "":
		return c, c.required("type")
	default:
		return c, fmt.Errorf("unsupported type %q for publisher %q", c.Type, c.ID)
	}
	return c, nil
}

func (c PublisherConfig) required(field string) error {
	return fmt.Errorf("%s is required for publisher %q", field, c.ID)
}

func (c PublisherConfig) missing() error {
	return fmt.Errorf("%s block is required for publisher %q", c.Type, c.ID)
}

func cleanHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Configs is the validated, ordered set of publisher declarations.
type Configs struct {
	list []PublisherConfig
}

type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// LoadConfigs reads publisher declarations from a YAML/JSON file.
func LoadConfigs(path string) (*Configs, error) {
	var file configFile
	if err := registryfile.Load(path, "publishers", &file); err != nil {
		return nil, err
	}
	return newConfigs(file.Publishers)
}

// ParseConfigs decodes publisher declarations; ext selects the decoder.
func ParseConfigs(data []byte, ext string) (*Configs, error) {
	var file configFile
	if err := registryfile.Decode(data, ext, "publishers", &file); err != nil {
		return nil, err
	}
	return newConfigs(file.Publishers)
}

func newConfigs(raw []PublisherConfig) (*Configs, error) {
	seen := make(map[string]struct{}, len(raw))
	list := make([]PublisherConfig, 0, len(raw))
	for i, entry := range raw {
		cfg, err := entry.normalized()
		if err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		list = append(list, cfg)
	}
	return &Configs{list: list}, nil
}

// All returns every declaration in file order.
func (c *Configs) All() []PublisherConfig {
	if c == nil {
		return nil
	}
	return append([]PublisherConfig(nil), c.list...)
}

// Enabled returns the enabled declarations in file order.
func (c *Configs) Enabled() []PublisherConfig {
	var out []PublisherConfig
	for _, cfg := range c.All() {
		if cfg.IsEnabled() {
			out = append(out, cfg)
		}
	}
	return out
}

// ByID looks up a declaration.
func (c *Configs) ByID(id string) (PublisherConfig, bool) {
	id = strings.TrimSpace(id)
	for _, cfg := range c.All() {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return PublisherConfig{}, false
}
