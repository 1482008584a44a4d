package reminders

import (
	"context"
	"fmt"
	"net/smtp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	persistent "github.com/srkaul/goalmaster/backend/storage/persistent"
)

// EmailNotifier delivers reminders by email over SMTP. The recipient
// address is looked up from the user record at delivery time.
type EmailNotifier struct {
	store      persistent.StorageInterface
	smtpServer string
	auth       smtp.Auth
	fromEmail  string
}

// NewEmailNotifier establishes an SMTP connection to the Gmail server
// with the sender's credentials and verifies it with a dial.
func NewEmailNotifier(store persistent.StorageInterface, sender, password string) (*EmailNotifier, error) {
	n := &EmailNotifier{
		store:      store,
		smtpServer: "smtp.gmail.com:587",
		fromEmail:  sender,
		auth: smtp.PlainAuth(
			"",
			sender,
			password,
			"smtp.gmail.com",
		),
	}

	c, err := smtp.Dial(n.smtpServer)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to the SMTP server: %v", err)
	}

	err = c.Close()
	if err != nil {
		return nil, fmt.Errorf("cannot close the SMTP connection: %v", err)
	}

	return n, nil
}

// Notify emails the reminder to the user's registered address.
func (n *EmailNotifier) Notify(ctx context.Context, msg *ReminderMessage) error {
	userID, err := primitive.ObjectIDFromHex(msg.UserId)
	if err != nil {
		return fmt.Errorf("invalid user id in reminder: %v", err)
	}

	user, err := n.store.FindUser(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("failed to look up reminder recipient: %v", err)
	}

	message := composeReminderEmail(n.fromEmail, user.Email, msg.Title, msg.Body)

	err = smtp.SendMail(
		n.smtpServer,
		n.auth,
		n.fromEmail,
		[]string{user.Email},
		message,
	)
	if err != nil {
		return fmt.Errorf("failed to send reminder email: %v", err)
	}
	return nil
}

// composeReminderEmail renders the reminder as an HTML email.
func composeReminderEmail(from, to, title, body string) []byte {
	headers := make(map[string]string)
	headers["From"] = from
	headers["To"] = to
	headers["Subject"] = title
	headers["MIME-version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=\"UTF-8\""

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}

	html := `
	<html>
		<head>
			<style>
				@import url('https://fonts.googleapis.com/css2?family=Lato:wght@400;700&display=swap');
				body {
					font-family: 'Lato', sans-serif;
					margin: 0;
					padding: 0;
				}
				.container {
					max-width: 600px;
					margin: 0 auto;
					padding: 10px;
					border-radius: 4px;
				}
				p {
					line-height: 1.6;
				}
			</style>
		</head>
		<body>
			<div class="container">
				<h1>` + title + `</h1>
				<p>` + body + `</p>
			</div>
		</body>
	</html>
	`
	message += "\r\n" + html

	return []byte(message)
}
