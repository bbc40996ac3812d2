package queue

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// DispatchQueueName is the durable queue carrying dispatch jobs.
const DispatchQueueName = "broadcast.dispatch"

const maxDeliveryAttempts = 3

// AMQPQueue publishes and consumes dispatch jobs over RabbitMQ.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

var _ DispatchQueue = (*AMQPQueue)(nil)

// NewAMQPQueue dials the broker and declares the dispatch queue.
func NewAMQPQueue(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		DispatchQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, log: log.With().Str("component", "queue").Logger()}, nil
}

func (q *AMQPQueue) PublishDispatch(broadcastID int) error {
	body, err := json.Marshal(DispatchJob{BroadcastID: broadcastID})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		DispatchQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume runs handler for every dispatch job. Handler errors requeue the
// job up to maxDeliveryAttempts; malformed payloads are acked and dropped.
// Blocks until the channel closes.
func (q *AMQPQueue) Consume(handler func(broadcastID int) error) error {
	msgs, err := q.ch.Consume(
		DispatchQueueName,
		"",
		false, // manual ack for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for d := range msgs {
		var job DispatchJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			q.log.Warn().Err(err).Msg("dropping malformed dispatch job")
			d.Ack(false)
			continue
		}

		if err := handler(job.BroadcastID); err != nil {
			attempts := deliveryAttempts(d)
			if attempts < maxDeliveryAttempts {
				q.log.Warn().Err(err).
					Int("broadcast_id", job.BroadcastID).
					Int("attempt", attempts).
					Msg("dispatch job failed, requeueing")
				d.Nack(false, true)
				continue
			}
			q.log.Error().Err(err).
				Int("broadcast_id", job.BroadcastID).
				Msg("dispatch job permanently failed")
		}
		d.Ack(false)
	}
	return nil
}

func deliveryAttempts(d amqp.Delivery) int {
	if d.Redelivered {
		// streadway/amqp exposes no redelivery count, only the flag, so a
		// redelivered job counts as the final attempt.
		return maxDeliveryAttempts
	}
	return 1
}

// Close releases the channel and connection.
func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}
