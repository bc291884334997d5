package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/worldbeesion/beecareful-backend/config"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
)

// FinalizeRequest is the payload of a finalization message.
type FinalizeRequest struct {
	DiagnosisID int64 `json:"diagnosisId"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue publishes finalization requests keyed by diagnosis id, so all
// requests for one diagnosis land on the same partition.
type KafkaQueue struct {
	writer messageWriter
}

func NewKafkaQueue(cfg config.KafkaConfig) *KafkaQueue {
	return &KafkaQueue{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, diagnosisID int64) error {
	payload, err := json.Marshal(FinalizeRequest{DiagnosisID: diagnosisID})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(diagnosisID, 10)),
		Value: payload,
	}
	if err := q.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		return fmt.Errorf("publish finalize request: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// Consumer feeds finalization requests from Kafka into the finalizer.
type Consumer struct {
	reader   messageReader
	finisher Finisher
	logger   *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, finisher Finisher, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
		MaxWait: time.Second,
	})
	return newConsumer(reader, finisher, logger)
}

func newConsumer(reader messageReader, finisher Finisher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Consumer{reader: reader, finisher: finisher, logger: logger}
}

// Run consumes until ctx is cancelled. A message is committed once it was
// handled or found unprocessable; any other failure stops the loop so the
// message is redelivered after restart.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch finalize request: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			return fmt.Errorf("commit finalize request: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)

	var req FinalizeRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.DiagnosisID <= 0 {
		log.ErrorContext(ctx, "dropping malformed finalize request", "value", string(msg.Value), "error", err)
		return nil
	}

	out, err := c.finisher.FinishDiagnosis(ctx, req.DiagnosisID)
	switch {
	case errors.Is(err, domain.ErrReferenceNotFound):
		log.WarnContext(ctx, "dropping finalize request for unknown diagnosis", "diagnosis_id", req.DiagnosisID, "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("finalize diagnosis %d: %w", req.DiagnosisID, err)
	}

	if out == nil {
		log.InfoContext(ctx, "finalize request for already finalized diagnosis", "diagnosis_id", req.DiagnosisID)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
