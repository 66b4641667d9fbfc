package remote

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// GoroutineRefresher refetches documents in background goroutines, one per
// url at a time.
type GoroutineRefresher struct {
	resolver *Resolver
	inflight sync.Map
	wg       sync.WaitGroup
}

func NewGoroutineRefresher(r *Resolver) *GoroutineRefresher {
	return &GoroutineRefresher{resolver: r}
}

func (g *GoroutineRefresher) Enqueue(url string) {
	if _, busy := g.inflight.LoadOrStore(url, struct{}{}); busy {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.inflight.Delete(url)
		_ = g.resolver.Refresh(context.Background(), url)
	}()
}

// Wait blocks until every scheduled refresh has finished.
func (g *GoroutineRefresher) Wait() {
	g.wg.Wait()
}

// ConnectNATS opens a NATS connection that keeps reconnecting.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("wpmastodon"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	return nats.Connect(url, opts...)
}

// NATSRefresher publishes due urls on a subject so that any serve process
// subscribed with SubscribeRefresh performs the refetch.
type NATSRefresher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

func NewNATSRefresher(conn *nats.Conn, subject string, logger zerolog.Logger) *NATSRefresher {
	return &NATSRefresher{conn: conn, subject: subject, logger: logger}
}

func (n *NATSRefresher) Enqueue(url string) {
	if err := n.conn.Publish(n.subject, []byte(url)); err != nil {
		n.logger.Warn().Err(err).Str("url", url).Msg("failed to publish refresh")
	}
}

// SubscribeRefresh consumes refresh requests from subject. Subscribers share
// a queue group so each url is refetched once.
func (r *Resolver) SubscribeRefresh(conn *nats.Conn, subject string) (*nats.Subscription, error) {
	return conn.QueueSubscribe(subject, "wpmastodon-refresh", func(msg *nats.Msg) {
		url := string(msg.Data)
		if err := r.Refresh(context.Background(), url); err != nil {
			r.logger.Debug().Err(err).Str("url", url).Msg("refresh from queue failed")
		}
	})
}
