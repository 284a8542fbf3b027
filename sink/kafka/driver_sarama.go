package kafka

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"flume/frame"
	"flume/internal/logging"
	"flume/sink"
)

type Config struct {
	Brokers []string
	Topic   string
	Acks    int16 // 0, 1, -1
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer
	ack frame.AckFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.start(p)
	return nil
}

// start drains the producer's result channels; a frame is acknowledged
// once the broker accepted it.
func (d *driver) start(p sarama.AsyncProducer) {
	d.p = p
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		for msg := range p.Successes() {
			if cp, ok := msg.Metadata.(*frame.Checkpoint); ok && cp != nil && d.ack != nil {
				d.ack(cp)
			}
		}
	}()
	go func() {
		defer d.wg.Done()
		for perr := range p.Errors() {
			logging.L().Error("kafka-sink: produce failed", "topic", perr.Msg.Topic, "err", perr.Err)
		}
	}()
}

func (d *driver) Push(f *frame.Frame) error {
	msg := &sarama.ProducerMessage{
		Topic:    d.cfg.Topic,
		Value:    sarama.ByteEncoder(f.Value),
		Metadata: f.Checkpoint,
	}
	if f.Key != nil {
		msg.Key = sarama.ByteEncoder(f.Key)
	}
	for k, v := range f.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	d.p.Input() <- msg
	return nil
}

func (d *driver) BindAck(fn frame.AckFunc) { d.ack = fn }

func (d *driver) Close() error {
	d.closeOnce.Do(func() {
		if d.p == nil {
			return
		}
		d.p.AsyncClose()
		d.wg.Wait()
	})
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
