package benchmarks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kbirk/wamp/internal/routertest"
	"github.com/kbirk/wamp/pkg/client"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/wamp"
)

func allSerializers() []serializer.Serializer {
	return []serializer.Serializer{
		serializer.NewJSONSerializer(),
		serializer.NewCBORSerializer(),
		serializer.NewMsgPackSerializer(),
	}
}

func connect(b *testing.B, router *routertest.Router, s serializer.Serializer) *wamp.Session {
	b.Helper()

	c := client.NewClient(client.Config{
		Serializer:   s,
		Dialer:       router.Dialer(s),
		CloseTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := c.Connect(ctx, "pipe://bench", routertest.DefaultRealm)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { session.Close() })
	return session
}

// BenchmarkCall measures a full CALL, INVOCATION, YIELD, RESULT round trip
func BenchmarkCall(b *testing.B) {
	for _, s := range allSerializers() {
		b.Run(s.Subprotocol(), func(b *testing.B) {
			router := routertest.NewRouter(routertest.Config{})
			b.Cleanup(router.Close)

			callee := connect(b, router, s)
			caller := connect(b, router, s)

			ctx := context.Background()
			_, err := callee.Register(ctx, "io.bench.echo", func(ctx context.Context, inv *wamp.Invocation) (*wamp.Result, error) {
				return wamp.NewResult(inv.Args, inv.Kwargs), nil
			}, nil)
			if err != nil {
				b.Fatal(err)
			}

			args := []any{"Hello, World! This is a test message.", 42}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := caller.Call(ctx, "io.bench.echo", args, nil, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkConcurrentCalls measures correlated calls in flight on one session
func BenchmarkConcurrentCalls(b *testing.B) {
	s := serializer.NewCBORSerializer()

	router := routertest.NewRouter(routertest.Config{})
	b.Cleanup(router.Close)

	callee := connect(b, router, s)
	caller := connect(b, router, s)

	ctx := context.Background()
	_, err := callee.Register(ctx, "io.bench.add", func(ctx context.Context, inv *wamp.Invocation) (*wamp.Result, error) {
		return wamp.NewResult(inv.Args, nil), nil
	}, nil)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := caller.Call(ctx, "io.bench.add", []any{1, 2}, nil, nil); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkPublishAcknowledged measures PUBLISH, PUBLISHED round trips
func BenchmarkPublishAcknowledged(b *testing.B) {
	for _, s := range allSerializers() {
		b.Run(s.Subprotocol(), func(b *testing.B) {
			router := routertest.NewRouter(routertest.Config{})
			b.Cleanup(router.Close)

			publisher := connect(b, router, s)

			ctx := context.Background()
			options := map[string]any{"acknowledge": true}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := publisher.Publish(ctx, "io.bench.topic", []any{i}, nil, options); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEventDelivery measures publish to subscriber handler latency
func BenchmarkEventDelivery(b *testing.B) {
	s := serializer.NewCBORSerializer()

	router := routertest.NewRouter(routertest.Config{})
	b.Cleanup(router.Close)

	publisher := connect(b, router, s)
	subscriber := connect(b, router, s)

	wg := &sync.WaitGroup{}

	ctx := context.Background()
	_, err := subscriber.Subscribe(ctx, "io.bench.events", func(e *wamp.Event) {
		wg.Done()
	}, nil)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		if err := publisher.Publish(ctx, "io.bench.events", []any{i}, nil, nil); err != nil {
			b.Fatal(err)
		}
		wg.Wait()
	}
}
