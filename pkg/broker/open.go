package broker

import (
	"context"
	"fmt"

	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/logger"
)

// Open connects the driver selected by cfg.BrokerDriver and declares the
// exchange.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (Channel, error) {
	var ch Channel
	switch cfg.BrokerDriver {
	case config.BrokerMemory:
		ch = NewMemoryChannel(log)
	case config.BrokerRabbitMQ:
		rc, err := DialRabbit(cfg.RabbitMQURL, log)
		if err != nil {
			return nil, err
		}
		ch = rc
	default:
		return nil, fmt.Errorf("broker: unknown driver %q", cfg.BrokerDriver)
	}

	if err := ch.Setup(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}
	log.InfoContext(ctx, "broker connected", "driver", cfg.BrokerDriver)
	return ch, nil
}
