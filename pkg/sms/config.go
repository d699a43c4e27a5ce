package sms

// Message types understood by SNS.
const (
	TypeTransactional = "Transactional"
	TypePromotional   = "Promotional"
)

// Config contains configuration for the SNS sender. AccessKeyID and
// SecretKey are optional; without them the default credential chain is used.
type Config struct {
	Region      string `env:"SMS_AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID string `env:"SMS_AWS_ACCESS_KEY_ID"`
	SecretKey   string `env:"SMS_AWS_SECRET_ACCESS_KEY"`
	Endpoint    string `env:"SMS_SNS_ENDPOINT"` // Optional: for SNS-compatible emulators
	SenderID    string `env:"SMS_SENDER_ID"`
	Type        string `env:"SMS_TYPE" envDefault:"Transactional"`
	MaxLength   int    `env:"SMS_MAX_LENGTH" envDefault:"480"`
}
