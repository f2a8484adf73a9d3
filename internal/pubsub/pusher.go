package pubsub

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/CinitSwift/divide/internal/metrics"
)

// PusherConfig carries the Channels-style credentials from configuration.
type PusherConfig struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
	// BaseURL overrides the cluster-derived endpoint. Used in tests.
	BaseURL string
}

// PusherPublisher publishes events to a Pusher-Channels-compatible HTTP
// API. Fan-out to clients happens inside the external service, so this
// backend is publish-only; clients subscribe to the service directly.
// A circuit breaker sheds calls while the service is down.
type PusherPublisher struct {
	appID   string
	key     string
	secret  string
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
	now     func() time.Time
}

// pusherEventBody is the wire format of POST /apps/{app_id}/events.
type pusherEventBody struct {
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
	Data     string   `json:"data"`
}

// NewPusherPublisher creates a publisher for the configured application.
func NewPusherPublisher(cfg PusherConfig) *PusherPublisher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://api-%s.pusher.com", cfg.Cluster)
	}

	st := gobreaker.Settings{
		Name:        "pusher",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("pusher").Set(stateVal)
		},
	}

	return &PusherPublisher{
		appID:   cfg.AppID,
		key:     cfg.Key,
		secret:  cfg.Secret,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  slog.Default().With("component", "pubsub", "backend", "pusher"),
		now:     time.Now,
	}
}

// Publish triggers the event on the remote channel. When the breaker is
// open the event is dropped and nil returned, matching the best-effort
// contract.
func (p *PusherPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	body, err := json.Marshal(pusherEventBody{
		Name:     event,
		Channels: []string{channel},
		Data:     string(data),
	})
	if err != nil {
		return fmt.Errorf("marshal event body: %w", err)
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.post(ctx, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("pusher").Inc()
			p.logger.Warn("circuit breaker open, dropping event", "channel", channel, "event", event)
			return nil // graceful degradation: clients refetch the snapshot
		}
		p.logger.Error("publish failed", "channel", channel, "event", event, "error", err)
		return err
	}
	return nil
}

func (p *PusherPublisher) post(ctx context.Context, body []byte) error {
	path := "/apps/" + p.appID + "/events"
	url := p.baseURL + path + "?" + p.signedQuery(path, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pusher returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// signedQuery builds the auth query string per the Channels REST
// protocol: the HMAC-SHA256 of "POST\n<path>\n<sorted params>".
func (p *PusherPublisher) signedQuery(path string, body []byte) string {
	bodyMD5 := md5.Sum(body)
	params := "auth_key=" + p.key +
		"&auth_timestamp=" + strconv.FormatInt(p.now().Unix(), 10) +
		"&auth_version=1.0" +
		"&body_md5=" + hex.EncodeToString(bodyMD5[:])

	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write([]byte("POST\n" + path + "\n" + params))
	return params + "&auth_signature=" + hex.EncodeToString(mac.Sum(nil))
}

// Close releases idle connections. The breaker needs no teardown.
func (p *PusherPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
