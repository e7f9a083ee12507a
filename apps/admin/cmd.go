package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	echoapi "github.com/trezcool/presence/apps/api/echo"
	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/journal"
	"github.com/trezcool/presence/storage/database"
)

var (
	gooseRunFunc     = database.Migrate  // mockable
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("no database configured (database.engine is empty)")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB // nil when the journal is kept in memory
	journal  *journal.Service
	notifier core.Notifier
	out      io.Writer
	now      func() time.Time
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args[1:])
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	return root.ExecuteContext(context.Background())
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Presence administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.migrateCmd(),
		cli.tokenCmd(),
		cli.historyCmd(),
		cli.notifyTestCmd(),
	)
	return root
}

// migrate

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run journal database migrations",
		Long: `Run a goose command against the journal database.

Commands:
  up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			if cli.db == nil {
				return errNoDatabase
			}
			return gooseRunFunc(cmd.Context(), cli.db, args[0], args[1:]...)
		},
	}
}

// token

func (cli *commandLine) tokenCmd() *cobra.Command {
	var (
		name, subject string
		admin, prompt bool
		ttl           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for a device or teacher",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject = core.CleanString(subject)
			if subject == "" {
				_ = cmd.Usage()
				return errHelp
			}

			secret := cli.conf.SecretKey
			if prompt {
				fmt.Fprint(cli.out, "Enter secret key:")
				key, err := readPasswordFunc(int(os.Stdin.Fd()))
				fmt.Fprintln(cli.out)
				if err != nil {
					return errors.Wrap(err, "reading secret key")
				}
				if len(key) == 0 {
					return errHelp
				}
				secret = string(key)
			}

			conf := *cli.conf
			if ttl > 0 {
				conf.Server.JWTExpirationDelta = ttl
			}
			token, err := echoapi.GenerateToken(echoapi.NewClaims(&conf, subject, core.CleanString(name), admin), secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "who the token is for, eg. the tablet id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&admin, "admin", false, "allow reading the journal")
	cmd.Flags().BoolVar(&prompt, "prompt-secret", false, "prompt for the signing key instead of using the configured one")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to server.jwtExpirationDelta)")
	return cmd
}

// history

func (cli *commandLine) historyCmd() *cobra.Command {
	var (
		kind, session, course, since string
		limit                        int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List what sessions sent out, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := journal.ParseKind(kind)
			if err != nil {
				return err
			}
			filter := journal.QueryFilter{
				Kind:      k,
				SessionID: core.CleanString(session),
				Course:    core.CleanString(course),
				Limit:     limit,
			}
			if since != "" {
				if d, err := time.ParseDuration(since); err == nil {
					filter.Since = cli.now().Add(-d)
				} else if filter.Since, err = time.Parse(time.RFC3339, since); err != nil {
					return errors.Errorf("since must be a duration or an RFC 3339 timestamp (got %q)", since)
				}
			}

			entries, err := cli.journal.History(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printEntries(cli.out, entries)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "submission or notification")
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.Flags().StringVar(&course, "course", "", "course name")
	cmd.Flags().StringVar(&since, "since", "", "eg. 24h or 2026-10-18T00:00:00Z")
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries (default 50)")
	return cmd
}

func printEntries(out io.Writer, entries []journal.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tSESSION\tCOURSE\tCOUNT\tRESULT")
	for _, e := range entries {
		result := "ok"
		if e.AckID != "" {
			result = e.AckID
		}
		if e.Failed() {
			result = "FAILED: " + e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.CreatedAt.Format("2006/01/02 15:04:05"), e.Kind, e.SessionID,
			strings.TrimSpace(e.Course+" "+e.Period), e.Count, result)
	}
	return w.Flush()
}

// notify-test

func (cli *commandLine) notifyTestCmd() *cobra.Command {
	var course string
	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send a sample attendance summary through the configured notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := cli.now()
			summary := core.Summary{
				Target:  core.Target{Course: course, Period: "測試", Date: now.Format("2006/01/02")},
				Course:  core.CourseInfo{Teacher: cli.conf.AppName, Course: course, Period: "測試", Date: now.Format("2006/01/02")},
				Present: []core.StudentRecord{{ID: "test-1", Name: "測試學生"}},
				Reason:  core.ReasonCompletion,
				At:      now,
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cli.conf.Notify.Timeout)
			defer cancel()
			if err := cli.notifier.SendAttendanceSummary(ctx, "notify-test", summary); err != nil {
				return errors.Wrap(err, "sending test summary")
			}
			fmt.Fprintf(cli.out, "test summary sent via %q\n", cli.conf.Notify.Backend)
			return nil
		},
	}
	cmd.Flags().StringVar(&course, "course", "通知測試", "course name shown in the summary")
	return cmd
}
