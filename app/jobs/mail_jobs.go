// Package jobs defines the background jobs the order flow queues.
package jobs

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/shashiranjanraj/vidorder/pkg/mail"
	"github.com/shashiranjanraj/vidorder/pkg/queue"
)

const (
	PaymentReceivedName = "payment_received_mail"
	VideoDeliveredName  = "video_delivered_mail"
)

var (
	paymentReceivedTmpl = template.Must(template.New("payment").Parse(
		`<p>Hi {{.Name}},</p>
<p>We received your payment of {{.Amount}} for order <strong>{{.OrderCode}}</strong>.
Our editors are starting on your video now.</p>`))

	videoDeliveredTmpl = template.Must(template.New("delivered").Parse(
		`<p>Hi {{.Name}},</p>
<p>Your video for order <strong>{{.OrderCode}}</strong> is ready.</p>
<p><a href="{{.DownloadURL}}">Download it here</a>.</p>`))
)

// PaymentReceived mails the customer once an order is paid.
type PaymentReceived struct {
	OrderCode string  `json:"orderCode"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`

	Mailer mail.Sender `json:"-"`
}

func (PaymentReceived) JobName() string { return PaymentReceivedName }

func (j *PaymentReceived) Handle(ctx context.Context) error {
	body, err := render(paymentReceivedTmpl, map[string]string{
		"Name":      j.Name,
		"OrderCode": j.OrderCode,
		"Amount":    FormatAmount(j.Total, j.Currency),
	})
	if err != nil {
		return err
	}
	return j.Mailer.Send(ctx, mail.To(j.Email).
		Subject("Payment received for order "+j.OrderCode).
		Body(body))
}

// VideoDelivered mails the customer when the processed video is attached.
type VideoDelivered struct {
	OrderCode   string `json:"orderCode"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`

	Mailer mail.Sender `json:"-"`
}

func (VideoDelivered) JobName() string { return VideoDeliveredName }

func (j *VideoDelivered) Handle(ctx context.Context) error {
	body, err := render(videoDeliveredTmpl, j)
	if err != nil {
		return err
	}
	return j.Mailer.Send(ctx, mail.To(j.Email).
		Subject("Your video is ready ("+j.OrderCode+")").
		Body(body))
}

// Register adds every job type to q, wired to m.
func Register(q *queue.Manager, m mail.Sender) {
	q.Register(PaymentReceivedName, func() queue.Job { return &PaymentReceived{Mailer: m} })
	q.Register(VideoDeliveredName, func() queue.Job { return &VideoDelivered{Mailer: m} })
}

// FormatAmount renders a major-unit amount with its currency code.
func FormatAmount(total float64, currency string) string {
	if currency == "" {
		currency = "usd"
	}
	return fmt.Sprintf("%.2f %s", total, strings.ToUpper(currency))
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("jobs: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
