package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/fystack/storage-inspector/internal/events"
	"github.com/fystack/storage-inspector/pkg/common/logger"
)

type NATSPrinterCmd struct {
	NATSURL string `help:"NATS server URL." default:"nats://127.0.0.1:4222" name:"nats-url"`
	Subject string `help:"Subject to subscribe to." default:"${subject}" name:"subject"`
}

func (c *NATSPrinterCmd) Run() error {
	initLogger("info", false, false)

	nc, err := nats.Connect(c.NATSURL)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	_, err = nc.Subscribe(c.Subject, func(msg *nats.Msg) {
		var ev events.SnapshotEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Error("Unmarshal snapshot failed", "err", err)
			return
		}
		fmt.Printf("[%s] %s.%s block=%s length=%s decoded=%d failed=%d\n",
			msg.Subject, ev.Contract, ev.Array, ev.Block, ev.Length, len(ev.Elements)-len(ev.Errors), len(ev.Errors))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.Subject, err)
	}
	logger.Info("Subscribed", "subject", c.Subject)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
