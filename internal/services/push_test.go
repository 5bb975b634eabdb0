package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/linage/linapush/internal/shared"
)

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

type messageSink struct {
	mu   sync.Mutex
	msgs []map[string]string
}

func (s *messageSink) handle(data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, data)
}

func (s *messageSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *messageSink) last() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return nil
	}
	return s.msgs[len(s.msgs)-1]
}

func TestNATSPushService(t *testing.T) {
	srv := runNATSServer(t)
	ctx := context.Background()

	t.Run("subscribed topics receive messages", func(t *testing.T) {
		sink := &messageSink{}
		svc, err := ConnectNATS(srv.ClientURL(), "test.push", "device-1", sink.handle, nil)
		require.NoError(t, err)
		defer svc.Close()

		require.NoError(t, svc.Subscribe(ctx, "segment_plan_basic"))
		require.NoError(t, svc.PublishTopic(ctx, "segment_plan_basic", map[string]string{"type": "new_plan", "title": "Fiber 1G"}))

		require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
		require.Equal(t, "new_plan", sink.last()["type"])
		require.Equal(t, []string{"segment_plan_basic"}, svc.Topics())
	})

	t.Run("duplicate subscribe is tolerated", func(t *testing.T) {
		sink := &messageSink{}
		svc, err := ConnectNATS(srv.ClientURL(), "test.dup", "device-1", sink.handle, nil)
		require.NoError(t, err)
		defer svc.Close()

		require.NoError(t, svc.Subscribe(ctx, "segment_active"))
		require.NoError(t, svc.Subscribe(ctx, "segment_active"))
		require.NoError(t, svc.PublishTopic(ctx, "segment_active", map[string]string{"type": "general"}))

		require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
		require.Never(t, func() bool { return sink.count() > 1 }, 200*time.Millisecond, 20*time.Millisecond)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		sink := &messageSink{}
		svc, err := ConnectNATS(srv.ClientURL(), "test.unsub", "device-1", sink.handle, nil)
		require.NoError(t, err)
		defer svc.Close()

		require.NoError(t, svc.Subscribe(ctx, "segment_dormant"))
		require.NoError(t, svc.Unsubscribe(ctx, "segment_dormant"))
		require.NoError(t, svc.Unsubscribe(ctx, "never_subscribed"))
		require.NoError(t, svc.PublishTopic(ctx, "segment_dormant", map[string]string{"type": "general"}))

		require.Never(t, func() bool { return sink.count() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
		require.Empty(t, svc.Topics())
	})

	t.Run("Listen delivers device messages and tokens", func(t *testing.T) {
		sink := &messageSink{}
		svc, err := ConnectNATS(srv.ClientURL(), "test.listen", "device-7", sink.handle, nil)
		require.NoError(t, err)
		defer svc.Close()

		tokens := make(chan string, 1)
		require.NoError(t, svc.Listen(ctx, func(token string) { tokens <- token }))

		nc, err := nats.Connect(srv.ClientURL())
		require.NoError(t, err)
		defer nc.Close()

		require.NoError(t, nc.Publish(svc.TokenSubject(), []byte("tok-123")))
		require.NoError(t, nc.Publish(svc.DeviceSubject(), []byte(`{"type":"payment_due","title":"Pay now"}`)))
		require.NoError(t, nc.Publish(svc.DeviceSubject(), []byte(`not json`)))
		require.NoError(t, nc.Flush())

		select {
		case token := <-tokens:
			require.Equal(t, "tok-123", token)
		case <-time.After(2 * time.Second):
			t.Fatal("expected token")
		}
		require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
		require.Equal(t, "payment_due", sink.last()["type"])
	})

	t.Run("Listen requires device id", func(t *testing.T) {
		svc, err := ConnectNATS(srv.ClientURL(), "", "", nil, nil)
		require.NoError(t, err)
		defer svc.Close()

		require.ErrorIs(t, svc.Listen(ctx, nil), shared.ErrInvalidArgument)
	})

	t.Run("invalid topics are rejected", func(t *testing.T) {
		svc, err := ConnectNATS(srv.ClientURL(), "", "d", nil, nil)
		require.NoError(t, err)
		defer svc.Close()

		for _, topic := range []string{"", "a.b", "wild*", "sp ace"} {
			require.ErrorIs(t, svc.Subscribe(ctx, topic), shared.ErrInvalidArgument, topic)
		}
	})

	t.Run("closed connection reports push unavailable", func(t *testing.T) {
		svc, err := ConnectNATS(srv.ClientURL(), "", "d", nil, nil)
		require.NoError(t, err)
		svc.Close()

		err = svc.Subscribe(ctx, "segment_x")
		require.True(t, errors.Is(err, shared.ErrPushUnavailable), "got %v", err)
	})
}

func TestConnectNATS(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		_, err := ConnectNATS("", "", "", nil, nil)
		require.ErrorIs(t, err, shared.ErrMissingConfig)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := ConnectNATS("nats://127.0.0.1:1", "", "", nil, nil, nats.Timeout(200*time.Millisecond), nats.NoReconnect())
		require.ErrorIs(t, err, shared.ErrPushUnavailable)
	})
}

func TestLocalPushService(t *testing.T) {
	ctx := context.Background()
	svc := NewLocalPushService(nil)

	require.NoError(t, svc.Subscribe(ctx, "segment_b"))
	require.NoError(t, svc.Subscribe(ctx, "segment_a"))
	require.NoError(t, svc.Subscribe(ctx, "segment_a"))
	require.Equal(t, []string{"segment_a", "segment_b"}, svc.Topics())

	require.NoError(t, svc.Unsubscribe(ctx, "segment_b"))
	require.Equal(t, []string{"segment_a"}, svc.Topics())
	require.ErrorIs(t, svc.Subscribe(ctx, "bad.topic"), shared.ErrInvalidArgument)
	require.Equal(t, "local", svc.Name())
}
