package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSDispatcher publishes notifications to a NATS subject per user so that
// delivery channels (websockets, mailers) can subscribe independently of the
// core. Publishing happens off the caller's goroutine; failures are logged
// and dropped.
type NATSDispatcher struct {
	conn *nats.Conn
}

// envelope is the wire format published for each notification
type envelope struct {
	UserID    string                 `json:"user_id"`
	Event     Event                  `json:"event"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewNATSDispatcher connects to the given NATS URL
func NewNATSDispatcher(url string) (*NATSDispatcher, error) {
	conn, err := nats.Connect(url,
		nats.Name("auction-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSDispatcher{conn: conn}, nil
}

func (d *NATSDispatcher) Notify(userID string, event Event, payload map[string]interface{}) {
	go func() {
		logger := log.With().
			Str("user_id", userID).
			Str("event", string(event)).
			Str("component", "notification").
			Logger()

		data, err := json.Marshal(envelope{
			UserID:    userID,
			Event:     event,
			Payload:   payload,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to marshal notification")
			return
		}

		subject := fmt.Sprintf("auction.notifications.%s", userID)
		if err := d.conn.Publish(subject, data); err != nil {
			logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish notification")
			return
		}

		logger.Debug().Str("subject", subject).Msg("notification published")
	}()
}

// Close drains the connection
func (d *NATSDispatcher) Close() {
	if err := d.conn.Drain(); err != nil {
		log.Warn().Err(err).Str("component", "notification").Msg("failed to drain NATS connection")
	}
}
