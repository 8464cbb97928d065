// Package alerting pushes processing alerts to chat and webhook services
// through shoutrrr.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"procodus.dev/qc-app/internal/backend"
)

// DefaultTimeout bounds one delivery to all configured services.
const DefaultTimeout = 10 * time.Second

// Config holds the configuration for a ShoutrrrSender.
type Config struct {
	Logger *slog.Logger
	// URLs are shoutrrr service URLs, e.g. "slack://token@channel".
	URLs    []string
	Timeout time.Duration
}

// ShoutrrrSender delivers alerts to every configured shoutrrr URL.
type ShoutrrrSender struct {
	logger *slog.Logger
	sender *router.ServiceRouter
}

var _ backend.AlertSender = (*ShoutrrrSender)(nil)

// NewShoutrrrSender validates the URLs and builds the sender.
func NewShoutrrrSender(cfg *Config) (*ShoutrrrSender, error) {
	if cfg == nil {
		return nil, errors.New("alerting config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	urls := make([]string, 0, len(cfg.URLs))
	for _, u := range cfg.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("at least one alert URL is required")
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// The raw error can echo tokens embedded in the URL.
		return nil, fmt.Errorf("failed to create alert sender for %d URLs: invalid service URL", len(urls))
	}

	sender.Timeout = DefaultTimeout
	if cfg.Timeout > 0 {
		sender.Timeout = cfg.Timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	cfg.Logger.Info("alert sender configured", "services", len(urls))

	return &ShoutrrrSender{
		logger: cfg.Logger,
		sender: sender,
	}, nil
}

// SendAlert formats alert and sends it to every service. It returns the
// first delivery error.
func (s *ShoutrrrSender) SendAlert(ctx context.Context, alert backend.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	title, body := Format(alert)
	params := stypes.Params{}
	params.SetTitle(title)

	for _, err := range s.sender.Send(body, &params) {
		if err != nil {
			return fmt.Errorf("failed to deliver alert for frame %d: %w", alert.FrameID, err)
		}
	}

	s.logger.Debug("alert delivered", "frame_id", alert.FrameID, "lines", len(alert.Lines))
	return nil
}

// NopSender drops every alert.
type NopSender struct{}

// SendAlert implements backend.AlertSender.
func (NopSender) SendAlert(context.Context, backend.Alert) error {
	return nil
}

// New returns a ShoutrrrSender, or a NopSender when no URL is configured.
func New(cfg *Config) (backend.AlertSender, error) {
	if cfg != nil && strings.TrimSpace(strings.Join(cfg.URLs, "")) == "" {
		return NopSender{}, nil
	}
	return NewShoutrrrSender(cfg)
}

// Format renders the alert title and body.
func Format(alert backend.Alert) (string, string) {
	serial := alert.SerialNumber
	if serial == "" {
		serial = fmt.Sprintf("#%d", alert.FrameID)
	}
	title := fmt.Sprintf("QC alert: frame %s", serial)

	var b strings.Builder
	fmt.Fprintf(&b, "%d notification(s) raised for frame %s at %s\n",
		len(alert.Lines), serial, alert.Time.UTC().Format(time.RFC3339))
	for _, line := range alert.Lines {
		fmt.Fprintf(&b, "- [%s] %s = %.2f", strings.ToUpper(line.Severity), line.Sensor, line.Value)
		if line.Normal != nil {
			fmt.Fprintf(&b, " normal %.2f", *line.Normal)
		}
		if line.Critical != nil {
			fmt.Fprintf(&b, " critical %.2f", *line.Critical)
		}
		b.WriteString("\n")
	}
	return title, strings.TrimRight(b.String(), "\n")
}
