package events

import (
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher republishes completion events on <subject>.<type>.
type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn
	subject string
	log     *logrus.Entry
}

// ConnectNATS dials the server. Callers treat a failure as "publishing
// disabled", not as fatal.
func ConnectNATS(url, subject string, log *logrus.Entry) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("steam-inventory"),
		nats.Timeout(3*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	p := newNATSPublisher(nc, subject, log)
	p.nc = nc
	return p, nil
}

func newNATSPublisher(conn publisher, subject string, log *logrus.Entry) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, log: log}
}

// Publish sends one notification. Errors are logged and dropped.
func (p *NATSPublisher) Publish(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		p.log.WithError(err).Error("failed to encode notification")
		return
	}

	subject := p.subject + "." + n.Type
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.WithError(err).WithField("subject", subject).Warn("NATS publish failed")
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
