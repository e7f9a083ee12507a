// Package notifysvc delivers attendance summaries: LINE push, e-mail or the console.
package notifysvc

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
)

type Sent struct {
	SessionID string
	Summary   core.Summary
}

// ConsoleNotifier writes summaries to an io.Writer. Used in dev and tests.
type ConsoleNotifier struct {
	out        io.Writer
	subjPrefix string
	now        func() time.Time

	mu   sync.Mutex
	sent []Sent
}

var _ core.Notifier = (*ConsoleNotifier)(nil)

func NewConsoleNotifier(appName string, out io.Writer) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{
		out:        out,
		subjPrefix: "[" + appName + "] ",
		now:        time.Now,
	}
}

func (n *ConsoleNotifier) SendAttendanceSummary(_ context.Context, sessionID string, summary core.Summary) error {
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s學生簽到通知 (%s)\r\n", n.subjPrefix, summary.Reason)
	_, _ = fmt.Fprintf(body, "Session: %s\r\n", sessionID)
	_, _ = fmt.Fprint(body, "\r\n")
	_, _ = fmt.Fprintf(body, "%s\r\n", summary.Text())

	if _, err := io.WriteString(n.out, body.String()); err != nil {
		return errors.Wrap(err, "writing summary")
	}

	n.mu.Lock()
	n.sent = append(n.sent, Sent{SessionID: sessionID, Summary: summary})
	n.mu.Unlock()
	return nil
}

// Sent returns the summaries written so far.
func (n *ConsoleNotifier) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

// New returns the notifier selected by Notify.Backend.
func New(conf *core.Config) (core.Notifier, error) {
	switch core.CleanString(conf.Notify.Backend, true /* lower */) {
	case "", "console":
		return NewConsoleNotifier(conf.AppName, nil), nil
	case "line":
		return NewLineNotifier(conf.Line, nil), nil
	case "email":
		return NewEmailNotifier(conf, nil), nil
	}
	return nil, errors.Errorf("unknown notify backend %q", conf.Notify.Backend)
}
