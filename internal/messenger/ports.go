package messenger

import "context"

// Sender delivers a reply to a Messenger recipient.
type Sender interface {
	Send(ctx context.Context, recipientID string, text string) error
}
