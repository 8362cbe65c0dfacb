package logship_test

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"net/http/httptest"

	"github.com/bft-labs/logship/pkg/logship"
)

// ExampleNew shows a Device used as the output of a standard library logger.
func ExampleNew() {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	cfg := logship.DefaultConfig()
	cfg.APIKey = "your-api-key"
	cfg.Endpoint = collector.URL

	dev, err := logship.New(cfg)
	if err != nil {
		fmt.Printf("failed to create device: %v\n", err)
		return
	}

	logger := stdlog.New(dev, "", 0)
	logger.Println("service started")

	if err := dev.Flush(context.Background()); err != nil {
		fmt.Printf("flush failed: %v\n", err)
	}
	if err := dev.Close(); err != nil {
		fmt.Printf("close failed: %v\n", err)
	}

	fmt.Println("delivered:", dev.Stats().Delivered)
	// Output: delivered: 1
}

// Example_withEventHandler demonstrates how to observe dropped batches.
func Example_withEventHandler() {
	cfg := logship.DefaultConfig()
	cfg.APIKey = "your-api-key"
	cfg.QueuePolicy = logship.QueuePolicyDrop

	dev, err := logship.New(cfg, logship.WithEventHandler(&dropCounter{}))
	if err != nil {
		fmt.Printf("failed to create device: %v\n", err)
		return
	}
	_ = dev
}

// dropCounter implements logship.EventHandler for drop notifications.
type dropCounter struct {
	logship.BaseEventHandler
	dropped int
}

func (h *dropCounter) OnDrop(event logship.DropEvent) {
	h.dropped += event.Messages
}
