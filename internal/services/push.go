package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/linage/linapush/internal/shared"
)

// PushService is the push messaging platform's topic contract.
//
// Subscribing to a topic that is already subscribed is a no-op at the protocol level.
type PushService interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Name() string
}

// MessageHandler receives an inbound message's data map.
type MessageHandler func(data map[string]string)

// TokenHandler receives a newly issued token.
type TokenHandler func(token string)

const defaultFlushTimeout = 2 * time.Second

// NATSPushService maps topics onto NATS subjects under a prefix:
//
//	<prefix>.topics.<topic>   inbound messages for a topic
//	<prefix>.devices.<id>     messages addressed to this device
//	<prefix>.tokens.<id>      token issuance
type NATSPushService struct {
	nc       *nats.Conn
	prefix   string
	deviceID string
	handler  MessageHandler
	logger   *log.Logger
	ownsConn bool

	mu   sync.Mutex
	subs map[string]*nats.Subscription
	base []*nats.Subscription
}

// ConnectNATS dials url and returns a service that closes the connection on [NATSPushService.Close].
func ConnectNATS(url, prefix, deviceID string, handler MessageHandler, logger *log.Logger, opts ...nats.Option) (*NATSPushService, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: push.nats_url", shared.ErrMissingConfig)
	}
	opts = append([]nats.Option{nats.Name("linapush"), nats.MaxReconnects(-1)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %v", shared.ErrPushUnavailable, err)
	}
	s := NewNATSPushService(nc, prefix, deviceID, handler, logger)
	s.ownsConn = true
	return s, nil
}

// NewNATSPushService wraps an existing connection. The caller keeps ownership of nc.
func NewNATSPushService(nc *nats.Conn, prefix, deviceID string, handler MessageHandler, logger *log.Logger) *NATSPushService {
	if prefix == "" {
		prefix = "linage.push"
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &NATSPushService{
		nc:       nc,
		prefix:   prefix,
		deviceID: deviceID,
		handler:  handler,
		logger:   logger,
		subs:     make(map[string]*nats.Subscription),
	}
}

// Name implements [PushService].
func (s *NATSPushService) Name() string { return "nats" }

// TopicSubject returns the subject inbound messages for topic arrive on.
func (s *NATSPushService) TopicSubject(topic string) string {
	return s.prefix + ".topics." + topic
}

// DeviceSubject returns the subject for messages addressed to this device.
func (s *NATSPushService) DeviceSubject() string {
	return s.prefix + ".devices." + s.deviceID
}

// TokenSubject returns the subject token issuance arrives on.
func (s *NATSPushService) TokenSubject() string {
	return s.prefix + ".tokens." + s.deviceID
}

// Subscribe implements [PushService].
func (s *NATSPushService) Subscribe(ctx context.Context, topic string) error {
	if err := validTopic(topic); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.subs[topic]; ok {
		s.mu.Unlock()
		return nil
	}
	sub, err := s.nc.Subscribe(s.TopicSubject(topic), s.deliver)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: subscribe %s: %v", shared.ErrPushUnavailable, topic, err)
	}
	s.subs[topic] = sub
	s.mu.Unlock()

	return s.flush(ctx)
}

// Unsubscribe implements [PushService]. Unknown topics are ignored.
func (s *NATSPushService) Unsubscribe(ctx context.Context, topic string) error {
	s.mu.Lock()
	sub, ok := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %v", shared.ErrPushUnavailable, topic, err)
	}
	return s.flush(ctx)
}

// Topics returns the subscribed topics in lexical order.
func (s *NATSPushService) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Listen subscribes to the device subject and, when onToken is set, the token subject.
func (s *NATSPushService) Listen(ctx context.Context, onToken TokenHandler) error {
	if s.deviceID == "" {
		return fmt.Errorf("%w: device id required to listen", shared.ErrInvalidArgument)
	}

	device, err := s.nc.Subscribe(s.DeviceSubject(), s.deliver)
	if err != nil {
		return fmt.Errorf("%w: subscribe device: %v", shared.ErrPushUnavailable, err)
	}
	subs := []*nats.Subscription{device}

	if onToken != nil {
		tokens, err := s.nc.Subscribe(s.TokenSubject(), func(msg *nats.Msg) {
			token := strings.TrimSpace(string(msg.Data))
			if token == "" {
				s.logger.Warn("ignoring empty token message", "subject", msg.Subject)
				return
			}
			onToken(token)
		})
		if err != nil {
			device.Unsubscribe()
			return fmt.Errorf("%w: subscribe tokens: %v", shared.ErrPushUnavailable, err)
		}
		subs = append(subs, tokens)
	}

	s.mu.Lock()
	s.base = append(s.base, subs...)
	s.mu.Unlock()
	return s.flush(ctx)
}

// PublishTopic sends data to every subscriber of topic.
func (s *NATSPushService) PublishTopic(ctx context.Context, topic string, data map[string]string) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := s.nc.Publish(s.TopicSubject(topic), payload); err != nil {
		return fmt.Errorf("%w: publish %s: %v", shared.ErrPushUnavailable, topic, err)
	}
	return s.flush(ctx)
}

// Close drops every subscription and closes the connection when the service owns it.
func (s *NATSPushService) Close() {
	s.mu.Lock()
	for topic, sub := range s.subs {
		sub.Unsubscribe()
		delete(s.subs, topic)
	}
	for _, sub := range s.base {
		sub.Unsubscribe()
	}
	s.base = nil
	s.mu.Unlock()

	if s.ownsConn {
		s.nc.Close()
	}
}

func (s *NATSPushService) deliver(msg *nats.Msg) {
	var data map[string]string
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		s.logger.Warn("dropping malformed push message", "subject", msg.Subject, "err", err)
		return
	}
	if s.handler != nil {
		s.handler(data)
	}
}

func (s *NATSPushService) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %v", shared.ErrPushUnavailable, err)
	}
	return nil
}

func validTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, " .*>\t\n") {
		return fmt.Errorf("%w: invalid topic %q", shared.ErrInvalidArgument, topic)
	}
	return nil
}

// LocalPushService tracks subscriptions in memory. It backs the CLI when no broker is configured.
type LocalPushService struct {
	logger *log.Logger

	mu     sync.Mutex
	topics map[string]struct{}
}

// NewLocalPushService creates a [LocalPushService].
func NewLocalPushService(logger *log.Logger) *LocalPushService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &LocalPushService{logger: logger, topics: make(map[string]struct{})}
}

// Name implements [PushService].
func (s *LocalPushService) Name() string { return "local" }

// Subscribe implements [PushService].
func (s *LocalPushService) Subscribe(_ context.Context, topic string) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("subscribed", "topic", topic)
	return nil
}

// Unsubscribe implements [PushService].
func (s *LocalPushService) Unsubscribe(_ context.Context, topic string) error {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
	s.logger.Debug("unsubscribed", "topic", topic)
	return nil
}

// Topics returns the subscribed topics in lexical order.
func (s *LocalPushService) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
