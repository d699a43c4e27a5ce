// Package email sends notification emails.
//
// EmailSender has two implementations: PostmarkClient for production and
// DevSender, which writes each message to disk as an HTML file plus a JSON
// envelope. New picks one from Config.Provider:
//
//	sender, err := email.New(cfg)
//	if err != nil {
//		return err
//	}
//	html, text, err := email.Compose(email.Message{
//		Title:      "Your subscription expires in 3 days",
//		Body:       "Renew now to keep your access.",
//		ActionURL:  "https://app.example.com/account/subscription/renew",
//		ActionText: "Renew now",
//	})
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   user.Email,
//		Subject:  "Your subscription expires in 3 days",
//		BodyHTML: html,
//		BodyText: text,
//		Tag:      "subscription:expiring-soon",
//	})
//
// All senders validate SendEmailParams first and wrap failures in
// ErrFailedToSendEmail.
package email
