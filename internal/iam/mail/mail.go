// Package mail delivers the transactional email the identity flows depend
// on: verification links on registration and reset links on password reset
// requests. Delivery is best effort; auth flows never fail because an email
// bounced.
package mail

import "context"

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
