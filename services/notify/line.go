package notifysvc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/presence/core"
)

type (
	// LineNotifier pushes summaries to a LINE chat through the Messaging API.
	LineNotifier struct {
		http  *rest.Client
		url   string
		token string
		to    string
	}

	lineText struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	linePush struct {
		To       string     `json:"to"`
		Messages []lineText `json:"messages"`
	}
)

var _ core.Notifier = (*LineNotifier)(nil)

func NewLineNotifier(conf core.LineConfig, client *http.Client) *LineNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &LineNotifier{
		http:  &rest.Client{HTTPClient: client},
		url:   conf.PushURL,
		token: conf.AccessToken,
		to:    conf.To,
	}
}

func (n *LineNotifier) SendAttendanceSummary(ctx context.Context, sessionID string, summary core.Summary) error {
	if n.token == "" {
		return errors.New("LINE access token not configured")
	}
	if n.to == "" {
		return errors.New("LINE recipient not configured")
	}

	body, err := json.Marshal(linePush{To: n.to, Messages: []lineText{{Type: "text", Text: summary.Text()}}})
	if err != nil {
		return errors.Wrap(err, "encoding LINE push")
	}
	res, err := n.http.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: n.url,
		Headers: map[string]string{
			"Authorization": "Bearer " + n.token,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return errors.Wrapf(err, "pushing summary of session %s to LINE", sessionID)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("LINE push of session %s - status: %d - body: %s", sessionID, res.StatusCode, res.Body)
	}
	return nil
}
