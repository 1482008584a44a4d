package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/streadway/amqp"

	"github.com/srkaul/goalmaster/backend/models"
	storage "github.com/srkaul/goalmaster/backend/storage/cache"
)

// globalCount is used in the round robin algorithm to assign producers
// to each reminder message.
var globalCount int

// ReminderMessage is the wire format of a queued reminder.
type ReminderMessage struct {
	Id        string `json:"id"`         // unique id, used for delivery dedup
	UserId    string `json:"user_id"`    // the recipient's user id
	Title     string `json:"title"`      // notification title
	Body      string `json:"body"`       // notification body
	DeliverAt string `json:"deliver_at"` // RFC 3339 delivery time, empty for immediate
}

// Notifier delivers a reminder to the user over some channel, for
// example a push gateway or the process log.
type Notifier interface {
	Notify(ctx context.Context, msg *ReminderMessage) error
}

// LogNotifier writes reminders to the process log. It is the delivery
// channel of last resort and the default in development.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg *ReminderMessage) error {
	log.Printf("reminder for user %s: %s - %s", msg.UserId, msg.Title, msg.Body)
	return nil
}

// ReminderProducerFactory creates new ReminderProducer instances.
type ReminderProducerFactory struct{}

// ReminderConsumerFactory creates new ReminderConsumer instances bound
// to a cache for dedup and a notifier for delivery.
type ReminderConsumerFactory struct {
	Cache    storage.CacheInterface
	Notifier Notifier
}

// ReminderProducer manages the connection, channel, and queue of the
// AMQP message producer for reminders.
type ReminderProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
}

// ReminderConsumer manages the connection, channel, queue, cache, and
// notifier of the AMQP message consumer for reminders.
type ReminderConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    *amqp.Queue
	cache    storage.CacheInterface
	notifier Notifier
}

func (f *ReminderProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &ReminderProducer{
		conn:    conn,
		channel: ch,
		queue:   queue,
	}, nil
}

func (f *ReminderConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	notifier := f.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ReminderConsumer{
		conn:     conn,
		channel:  ch,
		queue:    queue,
		cache:    f.Cache,
		notifier: notifier,
	}, nil
}

// Publish sends a reminder body to the queue.
func (rp *ReminderProducer) Publish(body []byte) error {
	err := rp.channel.Publish(
		"",            // exchange
		rp.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume sets up a consumer on the queue and launches a worker that
// reads reminders from it. Each reminder is unmarshalled, checked
// against the cache so redeliveries are not notified twice, and handed
// to the notifier. Reminders whose delivery time has not arrived yet
// are requeued.
func (rc *ReminderConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := rc.channel.Consume(
		rc.queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:

				if !ok {
					return
				}

				message := &ReminderMessage{}
				if err := json.Unmarshal(d.Body, message); err != nil {
					log.Printf("failed to unmarshal reminder message: %v", err)
					d.Nack(false, false) // a malformed body will never parse, drop it
					continue
				}

				if !dueNow(message) {
					d.Nack(false, true) // not due yet, requeue
					continue
				}

				processed, err := rc.cache.Get(ctx, "reminder_"+message.Id)
				if err != nil {
					// Ignore cache misses, handle other errors
					if err.Error() != "key does not exist" {
						log.Printf("error checking cache: %v", err)
						d.Nack(false, true) // requeue the message in case of transient error
						continue
					}
				}

				if processed != nil {
					d.Ack(false)
					continue
				}

				if err := rc.notifier.Notify(ctx, message); err != nil {
					log.Printf("failed to deliver reminder: %v", err)
					d.Nack(false, true) // requeue the message in case of transient error
				} else {
					d.Ack(false)
					if err := rc.cache.Set(ctx, "reminder_"+message.Id, true); err != nil {
						log.Printf("failed to set key in cache: %v", err)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// dueNow reports whether the reminder's delivery time has arrived.
// Reminders without a parseable delivery time are delivered immediately.
func dueNow(msg *ReminderMessage) bool {
	if msg.DeliverAt == "" {
		return true
	}
	deliverAt, err := time.Parse(time.RFC3339, msg.DeliverAt)
	if err != nil {
		return true
	}
	return !deliverAt.After(time.Now())
}

// BuildReminderQueue initializes a Queue for reminder messages with the
// requested number of producers and consumers.
func BuildReminderQueue(rabbitMQURL string, numProducers int, numConsumers int, reminderCache storage.CacheInterface, notifier Notifier) *Queue {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &ReminderProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &ReminderConsumerFactory{Cache: reminderCache, Notifier: notifier}
	}

	return InitQueue(rabbitMQURL, "reminderQueue", prodFactories, consFactories)
}

// InitReminderCache initializes the cache used to dedup reminder
// deliveries.
func InitReminderCache(url string) storage.CacheInterface {
	c, err := storage.NewCache(url)
	if err != nil {
		log.Fatalf("Error connecting to cache: %v", err)
	}
	return c
}

// ProcessReminder serializes a reminder and publishes it through one of
// the queue's producers in a round-robin manner.
func ProcessReminder(msg *ReminderMessage, reminderQueue *Queue) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.New("failed to marshal reminder message: " + err.Error())
	}

	producerCount := len(reminderQueue.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}

	producer := reminderQueue.Producers[globalCount%producerCount]
	globalCount++

	if err := producer.Publish(body); err != nil {
		return errors.New("failed to publish reminder message: " + err.Error())
	}

	return nil
}

// StepReminder builds the reminder sent when a step's deadline
// approaches.
func StepReminder(userID string, step *models.Step) *ReminderMessage {
	return &ReminderMessage{
		Id:        "step_" + step.ID.Hex(),
		UserId:    userID,
		Title:     "Step Reminder",
		Body:      "Don't forget: " + step.Text,
		DeliverAt: step.Deadline,
	}
}

// GoalReminder builds the reminder scheduled for the time the user
// said they want to work on the goal. The "when" answer is free text;
// anything that is not a parseable timestamp delivers right away.
func GoalReminder(userID string, goal *models.Goal) *ReminderMessage {
	return &ReminderMessage{
		Id:        "goal_" + goal.ID.Hex(),
		UserId:    userID,
		Title:     "Goal Reminder",
		Body:      "Keep going on your goal: " + goal.Answers.What,
		DeliverAt: goal.Answers.When,
	}
}

// MotivationalReminder builds the daily 9 AM nudge scheduled alongside
// a new goal. The id carries the delivery date so the cache dedups to
// one motivational message per user per day.
func MotivationalReminder(userID string, now time.Time) *ReminderMessage {
	at := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return &ReminderMessage{
		Id:        fmt.Sprintf("motivational_%s_%s", userID, at.Format("2006-01-02")),
		UserId:    userID,
		Title:     "You've got this!",
		Body:      "Take one small step toward your goal today",
		DeliverAt: at.Format(time.RFC3339),
	}
}

// RewardReminder builds the notification sent when a level-up earns
// the user their self-defined reward.
func RewardReminder(userID string, level int, reward string) *ReminderMessage {
	return &ReminderMessage{
		Id:     fmt.Sprintf("reward_%s_%d", userID, level),
		UserId: userID,
		Title:  "Reward Time!",
		Body:   fmt.Sprintf("You've reached level %d. Reward yourself: %s", level, reward),
	}
}
