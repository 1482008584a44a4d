package reminders

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Producer publishes a message body to the broker.
type Producer interface {
	Publish(body []byte) error
}

// Consumer listens to the broker's delivery stream and handles it.
type Consumer interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// ProducerFactory instantiates producers over an established connection.
type ProducerFactory interface {
	CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error)
}

// ConsumerFactory instantiates consumers over an established connection.
type ConsumerFactory interface {
	CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error)
}

// Queue holds the producers and consumers bound to one broker queue.
type Queue struct {
	Producers []Producer
	Consumers []Consumer
}

// connect dials the broker, opens a channel in confirm mode, and watches
// for connection closure.
func connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}

	if err = ch.Confirm(false); err != nil {
		return nil, nil, err
	}

	notifyClose := make(chan *amqp.Error)
	conn.NotifyClose(notifyClose)

	go func() {
		err := <-notifyClose
		if err != nil {
			log.Fatalf("RabbitMQ connection closed: %v", err)
		}
	}()

	return conn, ch, nil
}

// InitQueue connects to the broker, declares a durable queue with the
// given name, and builds producers and consumers for it from the
// provided factories.
func InitQueue(url string, queueName string, prodFactories []ProducerFactory, consFactories []ConsumerFactory) *Queue {
	conn, ch, err := connect(url)
	if err != nil {
		log.Fatalf("error connecting to RabbitMQ: %v", err)
	}

	queue, err := ch.QueueDeclare(
		queueName,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		log.Fatalf("error declaring queue: %v", err)
	}

	var producers []Producer
	var consumers []Consumer

	for _, prodFactory := range prodFactories {
		producer, err := prodFactory.CreateProducer(conn, ch, &queue)
		if err != nil {
			log.Fatalf("error creating producer: %v", err)
		}
		producers = append(producers, producer)
	}

	for _, consFactory := range consFactories {
		consumer, err := consFactory.CreateConsumer(conn, ch, &queue)
		if err != nil {
			log.Fatalf("error creating consumer: %v", err)
		}
		consumers = append(consumers, consumer)
	}

	return &Queue{
		Producers: producers,
		Consumers: consumers,
	}
}

// StartConsumers starts every consumer in its own goroutine. The caller
// controls the consumers' lifetime through ctx; an optional duration
// bounds it further. The returned WaitGroup reports when all consumers
// have stopped.
func (q *Queue) StartConsumers(ctx context.Context, runFor ...time.Duration) (context.CancelFunc, *sync.WaitGroup, error) {
	var cancel context.CancelFunc
	if len(runFor) > 0 {
		ctx, cancel = context.WithTimeout(ctx, runFor[0])
	}

	var wg sync.WaitGroup

	for _, consumer := range q.Consumers {
		wg.Add(1)

		go func(c Consumer) {
			defer wg.Done()

			if _, err := c.Consume(ctx); err != nil {
				log.Printf("Error starting consumer: %v", err)
				return
			}
			<-ctx.Done()
		}(consumer)
	}

	return cancel, &wg, nil
}
