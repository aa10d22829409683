package notify

import (
	"fmt"
	"net/smtp"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
	"go.uber.org/zap"
)

// SendEmail is the message handled by EmailActor.
type SendEmail struct {
	To      string
	Subject string
	Body    string
}

// EmailActor delivers buyer-facing emails over SMTP. Delivery failures are
// logged and dropped; notification is best effort by contract.
type EmailActor struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func (a *EmailActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *SendEmail:
		if err := a.send(msg); err != nil {
			a.logger.Error("failed to send email",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		a.logger.Info("email sent",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))

	case *actor.Started:
		a.logger.Info("email actor started")

	case *actor.Stopped:
		a.logger.Info("email actor stopped")
	}
}

func (a *EmailActor) send(msg *SendEmail) error {
	if a.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		a.cfg.From, msg.To, msg.Subject, msg.Body)

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}
	return smtp.SendMail(a.cfg.Addr(), auth, a.cfg.From, []string{msg.To}, []byte(body))
}

// Notifier is the fire-and-forget facade the order and delivery services talk
// to. Each call posts a message to the email actor and returns immediately.
type Notifier struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
}

func NewNotifier(system *actor.ActorSystem, cfg config.SMTPConfig, logger *zap.Logger) (*Notifier, error) {
	props := actor.PropsFromProducer(func() actor.Actor {
		return &EmailActor{cfg: cfg, logger: logger.Named("email-actor")}
	})
	pid, err := system.Root.SpawnNamed(props, "email-actor")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn email actor: %w", err)
	}
	return &Notifier{system: system, pid: pid, logger: logger}, nil
}

func (n *Notifier) OrderPaid(order *models.Order, email string) {
	if email == "" {
		return
	}
	n.system.Root.Send(n.pid, &SendEmail{
		To:      email,
		Subject: "Your order is confirmed",
		Body: fmt.Sprintf(
			"Your payment %s was confirmed and order %s is being prepared. Total: NGN %.2f.",
			order.PaymentReference, order.ID, float64(order.Total)/100),
	})
}

func (n *Notifier) HandoverCreated(h *models.PostOfficeHandover) {
	if h.BuyerEmail == "" {
		n.logger.Warn("handover has no buyer email, skipping pickup notice",
			zap.String("handover_id", h.ID))
		return
	}
	n.system.Root.Send(n.pid, &SendEmail{
		To:      h.BuyerEmail,
		Subject: "Your package is at the campus post office",
		Body: fmt.Sprintf(
			"A package for order %s is ready for pickup. Present this code at the post office: %s",
			h.OrderID, h.QRCode),
	})
}

func (n *Notifier) HandoverCollected(h *models.PostOfficeHandover) {
	if h.BuyerEmail == "" {
		return
	}
	n.system.Root.Send(n.pid, &SendEmail{
		To:      h.BuyerEmail,
		Subject: "Pickup confirmed",
		Body:    fmt.Sprintf("Your package for order %s was collected. Thanks for shopping with us.", h.OrderID),
	})
}

// Shutdown stops the email actor and waits for in-flight messages.
func (n *Notifier) Shutdown() {
	if err := n.system.Root.StopFuture(n.pid).Wait(); err != nil {
		n.logger.Warn("email actor did not stop cleanly", zap.Error(err))
	}
}
