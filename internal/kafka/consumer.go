package kafka

import (
	"context"
	"encoding/json"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"notification-engine/internal/config"
	"notification-engine/internal/engine"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

// Consumer reads activity events from a Kafka topic and feeds them into the
// pipeline. Malformed and invalid messages are logged and skipped so one bad
// producer cannot wedge the stream.
type Consumer struct {
	reader *kafkago.Reader
	engine *engine.Engine
	logger *logging.Logger
}

func NewConsumer(cfg config.Config, eng *engine.Engine, logger *logging.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{cfg.Kafka.Broker},
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.Topic,
	})
	return &Consumer{reader: reader, engine: eng, logger: logger}
}

func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.reader.Config().Topic)

		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Errorf("Kafka read failed: %v", err)
				continue
			}

			var ev models.Event
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				c.logger.Errorf("Kafka message unmarshal failed at offset %d: %v", msg.Offset, err)
				continue
			}
			if err := ev.Validate(); err != nil {
				c.logger.Errorf("Kafka message rejected at offset %d: %v", msg.Offset, err)
				continue
			}

			c.engine.Submit(ev)
		}
	}()
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
