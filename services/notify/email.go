package notifysvc

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/presence/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// EmailNotifier mails summaries through SendGrid.
type EmailNotifier struct {
	http       *rest.Client
	host       string
	key        string
	from       *sgmail.Email
	to         []string
	subjPrefix string
}

var _ core.Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(conf *core.Config, client *http.Client) *EmailNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &EmailNotifier{
		http:       &rest.Client{HTTPClient: client},
		host:       host,
		key:        conf.Sendgrid.APIKey,
		from:       sgmail.NewEmail(conf.AppName, conf.Sendgrid.FromEmail),
		to:         conf.Notify.EmailTo,
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (n *EmailNotifier) prepare(summary core.Summary) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	course := summary.Course.Course
	if course == "" {
		course = summary.Target.Course
	}
	p.Subject = n.subjPrefix + "學生簽到通知 - " + course

	for _, to := range n.to {
		p.AddTos(sgmail.NewEmail("", to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", summary.Text()))
	return m
}

func (n *EmailNotifier) SendAttendanceSummary(ctx context.Context, sessionID string, summary core.Summary) error {
	if len(n.to) == 0 {
		return errors.New("no summary recipients configured")
	}

	req := sendgrid.GetRequest(n.key, endpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(summary))

	res, err := n.http.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "mailing summary of session %s", sessionID)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("mailing summary of session %s - status: %d - body: %s", sessionID, res.StatusCode, res.Body)
	}
	return nil
}
