package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"flume/frame"
	"flume/internal/logging"
	"flume/source"
)

type SaramaDriver struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup
	slots *inFlight

	mu      sync.Mutex
	pending map[frame.Checkpoint]func()

	ackCh chan frame.Checkpoint
}

func (d *SaramaDriver) Configure(raw any) error {
	config, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-source: expected Config, got %T", raw)
	}
	d.cfg = config
	d.pending = make(map[frame.Checkpoint]func())
	d.slots = newInFlight(config.InFlight.Capacity)
	d.ackCh = make(chan frame.Checkpoint, int(config.InFlight.Capacity))

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = config.Checkpoint.CommitInt
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) Run(ctx context.Context, emit source.EmitFunc) error {
	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()

	handler := &groupHandler{driver: d, emit: emit}
	for {
		err := d.group.Consume(ctx, d.cfg.Topics, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *SaramaDriver) Close() error {
	if d.group == nil {
		return nil
	}
	return errors.Join(d.group.Close(), d.cl.Close())
}

// OnAck is wired to the sinks by the runner. It never blocks: when the
// queue is full the oldest ack is dropped; its frame will be redelivered.
func (d *SaramaDriver) OnAck(cp *frame.Checkpoint) {
	if cp == nil {
		return
	}
	select {
	case d.ackCh <- *cp:
		return
	default:
	}
	select {
	case <-d.ackCh:
	default:
	}
	select {
	case d.ackCh <- *cp:
	default:
		logging.L().Warn("sarama-driver: ack channel full; dropping ack",
			"topic", cp.Topic, "partition", cp.Partition, "offset", cp.Offset)
	}
}

// resolve runs the deferred mark for cp, if it is still pending.
func (d *SaramaDriver) resolve(cp frame.Checkpoint) bool {
	d.mu.Lock()
	cb, ok := d.pending[cp]
	if ok {
		delete(d.pending, cp)
	}
	d.mu.Unlock()
	if ok {
		cb()
		d.slots.Release()
		logging.L().Debug("kafka ack released", "topic", cp.Topic, "partition", cp.Partition, "offset", cp.Offset)
	}
	return ok
}

type groupHandler struct {
	driver *SaramaDriver
	emit   source.EmitFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.driver.mu.Lock()
	dropped := len(h.driver.pending)
	h.driver.pending = make(map[frame.Checkpoint]func())
	h.driver.mu.Unlock()
	h.driver.slots.Reset()

	if dropped > 0 {
		logging.L().Info("sarama-driver: rebalance, cleared pending acks", "count", dropped)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	d := h.driver
	ctx := sess.Context()
	e2e := d.cfg.CommitMode == CommitE2E

	for {
		// in e2e mode, stop reading while too many frames are unacknowledged
		if e2e && !d.slots.TryAcquire() {
			select {
			case cp := <-d.ackCh:
				d.resolve(cp)
				continue
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if e2e {
				d.slots.Release()
			}
			return nil

		case cp := <-d.ackCh:
			d.resolve(cp)
			if e2e {
				d.slots.Release()
			}

		case msg, ok := <-claim.Messages():
			if !ok {
				if e2e {
					d.slots.Release()
				}
				return nil
			}
			f := toFrame(msg)
			if e2e {
				d.mu.Lock()
				d.pending[*f.Checkpoint] = func() { sess.MarkMessage(msg, "") }
				d.mu.Unlock()
			}
			if err := h.emit(ctx, f); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !e2e {
				sess.MarkMessage(msg, "")
			}
		}
	}
}

func toFrame(msg *sarama.ConsumerMessage) *frame.Frame {
	return &frame.Frame{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toHeaderMap(msg.Headers),
		Ts:      msg.Timestamp,
		Checkpoint: &frame.Checkpoint{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		},
	}
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}

func init() {
	source.Register("kafka/sarama", func() source.Adapter { return &SaramaDriver{} })
}
