package node

import (
	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// blockNotifier publishes every newly applied block's header to Kafka, the
// way the teacher's validator service publishes accepted transactions
// (services/validator/Validator.go's kafkaProducer.SendMessage) — here the
// key is the block hash and the value is the stdcode-encoded header, so
// downstream consumers (explorers, alerting) can follow the chain tip
// without polling sync's GetSummary.
type blockNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   ulogger.Logger
	id       string
}

// newBlockNotifier dials brokers and returns nil, nil if brokers is empty
// — Kafka notification is optional infrastructure, not required for a
// node to apply blocks correctly.
func newBlockNotifier(logger ulogger.Logger, brokers []string, topic string) (*blockNotifier, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.New(errors.ErrService, "connecting to kafka brokers %v", brokers, err)
	}

	return &blockNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger.New("kafka"),
		id:       uuid.New().String(),
	}, nil
}

// publish sends header's canonical encoding to the configured topic, keyed
// by its hash so consumers can dedupe retried sends.
func (n *blockNotifier) publish(header *model.Header) {
	if n == nil {
		return
	}

	hash := header.Hash()
	_, _, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.ByteEncoder(hash[:]),
		Value: sarama.ByteEncoder(stdcode.Marshal(header)),
	})
	if err != nil {
		n.logger.Warnf("[%s] publishing block %d to kafka: %v", n.id, header.Height, err)
	}
}

func (n *blockNotifier) close() {
	if n == nil {
		return
	}
	if err := n.producer.Close(); err != nil {
		n.logger.Warnf("[%s] closing kafka producer: %v", n.id, err)
	}
}
