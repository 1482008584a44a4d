package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
)

// capturingProducer records published bodies instead of talking to a broker.
type capturingProducer struct {
	published [][]byte
}

func (p *capturingProducer) Publish(body []byte) error {
	p.published = append(p.published, body)
	return nil
}

func TestProcessReminderRoundRobin(t *testing.T) {
	first := &capturingProducer{}
	second := &capturingProducer{}
	queue := &Queue{Producers: []Producer{first, second}}

	for i := 0; i < 4; i++ {
		err := ProcessReminder(&ReminderMessage{Id: "r1", Title: "Step Reminder"}, queue)
		assert.NoError(t, err)
	}

	assert.Len(t, first.published, 2)
	assert.Len(t, second.published, 2)
}

func TestProcessReminderWithoutProducers(t *testing.T) {
	err := ProcessReminder(&ReminderMessage{Id: "r1"}, &Queue{})
	assert.Error(t, err)
}

func TestDueNow(t *testing.T) {
	assert.True(t, dueNow(&ReminderMessage{}))
	assert.True(t, dueNow(&ReminderMessage{DeliverAt: "not a timestamp"}))

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	assert.True(t, dueNow(&ReminderMessage{DeliverAt: past}))

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	assert.False(t, dueNow(&ReminderMessage{DeliverAt: future}))
}

func TestStepReminder(t *testing.T) {
	step := &models.Step{
		ID:       primitive.NewObjectID(),
		Text:     "Run 5k",
		Deadline: "2026-09-15T09:00:00Z",
	}

	msg := StepReminder("user1", step)
	assert.Equal(t, "step_"+step.ID.Hex(), msg.Id)
	assert.Equal(t, "Step Reminder", msg.Title)
	assert.Equal(t, "Don't forget: Run 5k", msg.Body)
	assert.Equal(t, step.Deadline, msg.DeliverAt)
}

func TestGoalReminder(t *testing.T) {
	goal := &models.Goal{
		ID:      primitive.NewObjectID(),
		Answers: models.Answers{What: "Learn guitar"},
	}

	msg := GoalReminder("user1", goal)
	assert.Equal(t, "Goal Reminder", msg.Title)
	assert.Equal(t, "Keep going on your goal: Learn guitar", msg.Body)
	assert.Empty(t, msg.DeliverAt)

	goal.Answers.When = "2026-09-15T18:00:00Z"
	msg = GoalReminder("user1", goal)
	assert.Equal(t, "2026-09-15T18:00:00Z", msg.DeliverAt)
}

func TestMotivationalReminder(t *testing.T) {
	morning := time.Date(2026, 9, 15, 7, 30, 0, 0, time.UTC)
	msg := MotivationalReminder("user1", morning)
	assert.Equal(t, "motivational_user1_2026-09-15", msg.Id)
	assert.Equal(t, "You've got this!", msg.Title)
	assert.Equal(t, "Take one small step toward your goal today", msg.Body)
	assert.Equal(t, "2026-09-15T09:00:00Z", msg.DeliverAt)

	// Past today's 9 AM the nudge rolls over to tomorrow.
	evening := time.Date(2026, 9, 15, 21, 0, 0, 0, time.UTC)
	msg = MotivationalReminder("user1", evening)
	assert.Equal(t, "motivational_user1_2026-09-16", msg.Id)
	assert.Equal(t, "2026-09-16T09:00:00Z", msg.DeliverAt)
}

func TestRewardReminder(t *testing.T) {
	msg := RewardReminder("user1", 3, "Movie night")
	assert.Equal(t, "reward_user1_3", msg.Id)
	assert.Equal(t, "Reward Time!", msg.Title)
	assert.Equal(t, "You've reached level 3. Reward yourself: Movie night", msg.Body)
}

func TestComposeReminderEmail(t *testing.T) {
	message := string(composeReminderEmail("app@example.com", "user@example.com", "Step Reminder", "Don't forget: Run 5k"))

	assert.Contains(t, message, "From: app@example.com\r\n")
	assert.Contains(t, message, "To: user@example.com\r\n")
	assert.Contains(t, message, "Subject: Step Reminder\r\n")
	assert.Contains(t, message, "Content-Type: text/html")
	assert.Contains(t, message, "<h1>Step Reminder</h1>")
	assert.Contains(t, message, "<p>Don't forget: Run 5k</p>")
}
