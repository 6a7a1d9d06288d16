// Command sseload opens many concurrent connections to the wallet dashboard
// stream and reports how many wallet events each kind of client received.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	wallet      atomic.Int64
	invalidated atomic.Int64
	other       atomic.Int64
}

func (c *counters) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("connected", c.connected.Load()),
		zap.Int64("connect_errs", c.connectErrs.Load()),
		zap.Int64("stream_errs", c.streamErrs.Load()),
		zap.Int64("wallet_events", c.wallet.Load()),
		zap.Int64("invalidated_events", c.invalidated.Load()),
		zap.Int64("other_events", c.other.Load()),
	}
}

func (c *counters) count(line string) {
	name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: ")
	if !ok {
		return
	}
	switch name {
	case "wallet":
		c.wallet.Add(1)
	case "invalidated":
		c.invalidated.Add(1)
	default:
		c.other.Add(1)
	}
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/wallet/stream", "wallet stream url")
	connections := flag.Int("conns", 1000, "number of concurrent connections")
	duration := flag.Duration("dur", time.Minute, "test duration, 0 runs until interrupted")
	perSecond := flag.Float64("rate", 500, "new connections per second during ramp-up")
	resume := flag.String("last-event-id", "", "resume index sent as Last-Event-ID")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if *connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", *connections))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     *connections + 100,
		MaxIdleConns:        *connections + 100,
		MaxIdleConnsPerHost: *connections + 100,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}}

	logger.Info("starting wallet stream load",
		zap.String("url", *targetURL), zap.Int("conns", *connections), zap.Duration("dur", *duration))

	var stats counters
	start := time.Now()
	ramp := rate.NewLimiter(rate.Limit(*perSecond), 1)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("status", append(stats.fields(), zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))...)
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < *connections; i++ {
		if err := ramp.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			stream(ctx, client, *targetURL, *resume, &stats)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	total := stats.wallet.Load() + stats.invalidated.Load() + stats.other.Load()
	fmt.Printf("done: elapsed=%s events/s=%.2f\n", elapsed.Truncate(time.Millisecond), float64(total)/elapsed.Seconds())
	logger.Info("done", stats.fields()...)
}

func stream(ctx context.Context, client *http.Client, url, resume string, stats *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if resume != "" {
		req.Header.Set("Last-Event-ID", resume)
	}

	resp, err := client.Do(req)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stats.connectErrs.Add(1)
		return
	}
	stats.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				stats.streamErrs.Add(1)
			}
			return
		}
		stats.count(line)
	}
}
