package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/app"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/session"
)

var (
	askProvider   string
	askContext    string
	askPagesFile  string
	askCredential string
)

var askCmd = &cobra.Command{
	Use:   "ask <message...>",
	Short: "Send one message and stream the reply to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askProvider, "provider", "p", "", "provider or model name (defaults to default_provider)")
	f.StringVar(&askContext, "context", "", "selected document text to ground the answer")
	f.StringVar(&askPagesFile, "pages", "", "file with the document's opening pages, used for summaries")
	f.StringVar(&askCredential, "key", "", "API key for this request instead of the stored one")
}

func runAsk(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return errors.New("message is empty")
	}
	var firstPages string
	if askPagesFile != "" {
		data, err := os.ReadFile(askPagesFile)
		if err != nil {
			return fmt.Errorf("read pages: %w", err)
		}
		firstPages = string(data)
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	adapters := app.NewAdapters(e.cfg, e.logger)
	provider := app.DefaultProvider(e.cfg)
	if askProvider != "" {
		if provider, err = adapters.Resolve(askProvider); err != nil {
			return err
		}
	}
	builder, err := app.LoadBuilder(e.cfg)
	if err != nil {
		return err
	}

	recorded := make(observed)
	surface := session.NewSurface(session.Config{
		Name:        "cli",
		Adapters:    adapters,
		Builder:     builder,
		HTTPClient:  app.NewHTTPClient(e.cfg),
		Credentials: e.stores.Credentials,
		Observers:   append(app.Observers(e.stores, nil, e.logger), recorded),
		Logger:      e.logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	sess, err := surface.Start(ctx, session.Request{
		Provider:        provider,
		History:         []chat.Turn{chat.NewTurn(message, true)},
		SelectedContext: askContext,
		FirstPages:      firstPages,
		Credential:      askCredential,
	}, func(fragment string) { io.WriteString(out, fragment) })
	if err != nil {
		return err
	}
	// the ledger entry is written before the last observer runs
	<-recorded
	res := sess.Result()
	if res.Text != "" {
		fmt.Fprintln(out)
	}
	switch res.State {
	case session.StateCancelled:
		return errors.New("cancelled")
	case session.StateFailed:
		return res.Err
	}
	if res.DecodeErrors > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d malformed events\n", res.DecodeErrors)
	}
	return nil
}

// observed is closed once every earlier observer has seen the session finish.
type observed chan struct{}

func (o observed) SessionStarted(session.Info) {}

func (o observed) SessionFinished(session.Info, session.Result) { close(o) }
