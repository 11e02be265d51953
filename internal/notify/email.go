package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

//go:embed templates/order.html
var templatesFS embed.FS

var orderTmpl = template.Must(template.ParseFS(templatesFS, "templates/order.html"))

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type PostmarkMailer struct {
	client *postmark.Client
}

func NewPostmarkMailer(token string) *PostmarkMailer {
	return &PostmarkMailer{client: postmark.NewClient(token, "")}
}

// postmark error codes that will not succeed on retry
var postmarkPermanent = map[int64]bool{
	300: true, // invalid email request
	406: true, // inactive recipient
	10:  true, // bad API token
}

func (m *PostmarkMailer) Send(_ context.Context, msg Message) error {
	res, err := m.client.SendEmail(postmark.Email{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
		Tag:      "order",
	})
	if err != nil {
		err = fmt.Errorf("postmark: %w", err)
		if postmarkPermanent[res.ErrorCode] {
			return Permanent(err)
		}
		return err
	}
	return nil
}

type SendGridMailer struct {
	client *sendgrid.Client
}

func NewSendGridMailer(key string) *SendGridMailer {
	return &SendGridMailer{client: sendgrid.NewSendClient(key)}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	body := mail.NewSingleEmail(mail.NewEmail("", msg.From), msg.Subject, mail.NewEmail("", msg.To), msg.Text, msg.HTML)
	resp, err := m.client.SendWithContext(ctx, body)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, fmt.Errorf("sendgrid %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body)))
	}
	return nil
}

// RecipientFunc resolves the current admin address; settings can change it at runtime.
type RecipientFunc func(ctx context.Context) string

type EmailNotifier struct {
	mailer Mailer
	from   string
	to     RecipientFunc
}

func NewEmailNotifier(m Mailer, from string, to RecipientFunc) *EmailNotifier {
	return &EmailNotifier{mailer: m, from: from, to: to}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Run(ctx context.Context, s *domain.Submission) error {
	if n.mailer == nil || n.from == "" || n.to == nil {
		return ErrNotConfigured
	}
	to := n.to(ctx)
	if to == "" {
		return ErrNotConfigured
	}
	msg, err := BuildOrderEmail(s)
	if err != nil {
		return Permanent(err)
	}
	msg.From, msg.To = n.from, to
	return n.mailer.Send(ctx, msg)
}

func formatAddress(a domain.Address) string {
	street := a.Street
	if a.Unit != "" {
		street += ", " + a.Unit
	}
	return fmt.Sprintf("%s, %s, %s %s", street, a.City, a.State, a.Zip)
}

// BuildOrderEmail renders subject, HTML and plain text for a submission.
func BuildOrderEmail(s *domain.Submission) (Message, error) {
	data := struct {
		S           *domain.Submission
		DOB, SSN    string
		Phone       string
		Address     string
		PrevAddress string
		AddOns      string
		Submitted   string
		Forced      bool
	}{
		S:           s,
		DOB:         orderform.FormatDateOfBirth(s.DateOfBirth),
		SSN:         orderform.FormatSSN(s.SSN),
		Phone:       orderform.FormatPhone(s.Phone),
		Address:     formatAddress(s.ServiceAddress()),
		PrevAddress: formatAddress(s.PreviousAddress()),
		AddOns:      strings.Join(s.SelectedAddOns, ", "),
		Submitted:   FormatSubmitted(s.SubmissionDate),
		Forced:      s.ForceProvider,
	}

	var buf bytes.Buffer
	if err := orderTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render order email: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "New internet order from %s (%s)\n", s.AgentName, s.AgentID)
	fmt.Fprintf(&text, "Customer: %s, %s, %s\n", s.CustomerName, s.Email, data.Phone)
	fmt.Fprintf(&text, "Address: %s\n", data.Address)
	fmt.Fprintf(&text, "Provider: %s / %s\n", s.SelectedProvider, s.SelectedPackage)
	if s.ForceProvider {
		text.WriteString("Provider was forced outside the matched coverage.\n")
	}
	fmt.Fprintf(&text, "Submitted: %s ET\n", data.Submitted)

	return Message{
		Subject: "New Internet Order - Agent: " + s.AgentName,
		HTML:    buf.String(),
		Text:    text.String(),
	}, nil
}
