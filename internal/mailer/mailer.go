// Package mailer sends account-lifecycle notification emails.
//
// The split here mirrors the rest of the app: Mailer is the transport
// interface (SendGrid in production, fakes in tests), and Dispatcher is the
// fire-and-forget layer the services talk to. Services never wait on — and
// can never be failed by — an email provider.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Message is a single outbound email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Mailer delivers a message synchronously. Implementations must respect ctx
// cancellation — the Dispatcher imposes a send timeout through it.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// sendTimeout bounds a single delivery attempt. A slow provider must never
// hold a goroutine hostage indefinitely.
const sendTimeout = 10 * time.Second

// Dispatcher wraps a Mailer with fire-and-forget semantics.
//
// Each Dispatch spawns a goroutine with its own timeout context, detached
// from the HTTP request that triggered it: the response goes out whether or
// not the email ever gets delivered. Failures are logged, not returned —
// there is nobody left to return them to.
type Dispatcher struct {
	mailer Mailer
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher around the given transport.
func NewDispatcher(m Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{mailer: m, logger: logger}
}

// SendWelcome dispatches the signup greeting.
func (d *Dispatcher) SendWelcome(email, name string) {
	d.dispatch(Message{
		To:      email,
		ToName:  name,
		Subject: "Thanks for joining in!",
		Body:    fmt.Sprintf("Welcome to the app, %s. Let me know how you get along with the app.", name),
	})
}

// SendFarewell dispatches the account-deletion goodbye.
func (d *Dispatcher) SendFarewell(email, name string) {
	d.dispatch(Message{
		To:      email,
		ToName:  name,
		Subject: "Sorry to see you go!",
		Body:    fmt.Sprintf("Dear %s, we are sorry to see you go. We would love to know what we could have done better to keep you as a customer.", name),
	})
}

func (d *Dispatcher) dispatch(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := d.mailer.Send(ctx, msg); err != nil {
			d.logger.Error("sending notification email",
				slog.String("to", msg.To),
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until all in-flight sends finish. Called during graceful
// shutdown so a farewell email isn't cut off by process exit.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
