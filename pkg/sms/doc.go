// Package sms sends text messages through Amazon SNS.
//
// A Sender publishes directly to a phone number in E.164 format. The SNS client
// is built from Config with the AWS SDK v2 default credential chain, or
// injected with WithSNSClient:
//
//	sender, err := sms.NewSender(ctx, sms.Config{Region: "eu-west-1", SenderID: "Notify"})
//	if err != nil {
//		return err
//	}
//	id, err := sender.Send(ctx, "+14155550100", "Your subscription expires today")
package sms
