package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// dialWithRetry keeps trying the broker so that the api and worker can start
// before rabbitmq finishes booting, which is the common case under compose.
func dialWithRetry(url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		lastErr = err
		slog.Warn("rabbitmq dial failed", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	return nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", MaxConnectRetry, lastErr)
}

// openTaskChannel opens a channel and declares both task queues as durable.
// Declaration is idempotent, so publisher and receiver can each do it and
// neither has to start first.
func openTaskChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	for _, queue := range []string{AnalysisQueue, SyncQueue} {
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}
	return channel, nil
}

type RabbitMQPublisher struct {
	url string

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closeOnce sync.Once
}

func NewRabbitMQPublisher(rabbitMQURL string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{url: rabbitMQURL}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, err := dialWithRetry(p.url)
	if err != nil {
		return err
	}

	channel, err := openTaskChannel(conn)
	if err != nil {
		conn.Close()
		slog.Error("publisher channel setup failed", "error", err)
		return err
	}

	p.conn = conn
	p.channel = channel
	slog.Info("rabbitmq publisher ready")

	go p.watchConnection(channel)

	return nil
}

// watchConnection blocks until the channel dies, then rebuilds the
// connection. A graceful Close delivers a closed notify channel and we
// simply return.
func (p *RabbitMQPublisher) watchConnection(channel *amqp.Channel) {
	notifyClose := channel.NotifyClose(make(chan *amqp.Error))

	amqpErr, ok := <-notifyClose
	if !ok {
		return
	}

	slog.Warn("rabbitmq publisher connection lost, reconnecting", "error", amqpErr)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = nil
	p.channel = nil

	for {
		if err := p.connect(); err == nil {
			slog.Info("rabbitmq publisher reconnected")
			return
		}
		time.Sleep(RetryDelay * 10)
	}
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", queue, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil || p.channel.IsClosed() {
		return fmt.Errorf("rabbitmq connection is down")
	}

	// Default exchange routes directly to the queue named by the key.
	// Persistent delivery so tasks survive a broker restart.
	err = p.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		slog.Error("publish failed", "queue", queue, "error", err)
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) PublishAnalysisTask(ctx context.Context, payload AnalysisTaskPayload) error {
	return p.publish(ctx, AnalysisQueue, payload)
}

func (p *RabbitMQPublisher) PublishSyncTask(ctx context.Context, payload SyncTaskPayload) error {
	return p.publish(ctx, SyncQueue, payload)
}

func (p *RabbitMQPublisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.conn == nil {
			return
		}
		if err := p.conn.Close(); err != nil {
			slog.Error("error closing rabbitmq connection", "error", err)
		}
	})
}

// RabbitMQTask adapts an amqp delivery to the Task interface. The routing
// key doubles as the task type since tasks are published straight to their
// queue.
type RabbitMQTask struct {
	delivery amqp.Delivery
}

func (t *RabbitMQTask) Type() string {
	return t.delivery.RoutingKey
}

func (t *RabbitMQTask) Payload() []byte {
	return t.delivery.Body
}

func (t *RabbitMQTask) Ack() error {
	return t.delivery.Ack(false)
}

func (t *RabbitMQTask) Nack() error {
	return t.delivery.Nack(false, false)
}

func (t *RabbitMQTask) Reject() error {
	return t.delivery.Reject(false)
}

type RabbitMQReceiver struct {
	url   string
	tasks chan Task
	stop  chan struct{}
}

func NewRabbitMQReceiver(rabbitMQURL string) (*RabbitMQReceiver, error) {
	r := &RabbitMQReceiver{
		url:   rabbitMQURL,
		tasks: make(chan Task),
		stop:  make(chan struct{}),
	}
	if err := r.startConsuming(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQReceiver) startConsuming() error {
	conn, err := dialWithRetry(r.url)
	if err != nil {
		return err
	}

	channel, err := openTaskChannel(conn)
	if err != nil {
		conn.Close()
		slog.Error("receiver channel setup failed", "error", err)
		return err
	}

	// Prefetch of 1 keeps slow sync tasks from starving analysis tasks on
	// the same worker and lets additional workers share the backlog.
	if err := channel.Qos(1, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set channel qos: %w", err)
	}

	for _, queue := range []string{AnalysisQueue, SyncQueue} {
		deliveries, err := channel.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to consume from queue %s: %w", queue, err)
		}
		go r.forward(deliveries)
	}

	go r.watchConnection(conn, channel)

	return nil
}

func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		r.tasks <- &RabbitMQTask{delivery: d}
	}
}

func (r *RabbitMQReceiver) watchConnection(conn *amqp.Connection, channel *amqp.Channel) {
	notifyClose := channel.NotifyClose(make(chan *amqp.Error))

	select {
	case amqpErr, ok := <-notifyClose:
		if !ok {
			return
		}
		slog.Warn("rabbitmq consumer connection lost, reconnecting", "error", amqpErr)
		for {
			if err := r.startConsuming(); err == nil {
				slog.Info("rabbitmq consumer restarted")
				return
			}
			time.Sleep(RetryDelay * 10)
		}
	case <-r.stop:
		if err := conn.Close(); err != nil {
			slog.Error("error closing rabbitmq connection", "error", err)
		}
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	close(r.stop)
}
