package notifications

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"dubber/internal/config"
)

// Event names a job lifecycle milestone published to subscribers.
type Event string

const (
	EventJobSubmitted   Event = "job.submitted"
	EventStageStarted   Event = "job.stage.started"
	EventStageCompleted Event = "job.stage.completed"
	EventJobCompleted   Event = "job.completed"
	EventJobFailed      Event = "job.failed"
)

// Payload carries the job context attached to every event.
type Payload struct {
	JobID          string `json:"job_id"`
	Stage          string `json:"stage,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	OutputAsset    string `json:"output_asset,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Close()
}

// NewService builds a notification service backed by NATS when configured.
// When no NATS URL is configured, a noop implementation is returned.
func NewService(cfg *config.Config) (Service, error) {
	url := strings.TrimSpace(cfg.Notifications.NATSURL)
	if url == "" {
		return noopService{}, nil
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(cfg.Notifications.Subject)
	if subject == "" {
		subject = "dubber.jobs"
	}
	return &natsService{nc: nc, subject: subject}, nil
}

type natsService struct {
	nc      *nats.Conn
	subject string
}

type message struct {
	Event Event   `json:"event"`
	At    string  `json:"at"`
	Job   Payload `json:"job"`
}

func (n *natsService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, err := json.Marshal(message{
		Event: event,
		At:    time.Now().UTC().Format(time.RFC3339Nano),
		Job:   payload,
	})
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject+"."+string(event), data)
}

func (n *natsService) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}

// Noop returns a Service that discards every event.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(ctx context.Context, event Event, payload Payload) error { return nil }

func (noopService) Close() {}
