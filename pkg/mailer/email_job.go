package mailer

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// OTP mails are plain text, so the job carries subject and body directly.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}
