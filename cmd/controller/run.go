package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/affect-tick/internal/bus"
	"github.com/danielpatrickdp/affect-tick/internal/cognition"
	"github.com/danielpatrickdp/affect-tick/internal/config"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	"github.com/danielpatrickdp/affect-tick/internal/lexicon"
	"github.com/danielpatrickdp/affect-tick/internal/logging"
	"github.com/danielpatrickdp/affect-tick/internal/oracle"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
	"github.com/danielpatrickdp/affect-tick/internal/store"
	"github.com/danielpatrickdp/affect-tick/internal/telemetry"
)

// #region run-cmd
var (
	runNoOracle bool
	runVerbose  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read events from stdin and run the tick loop",
	Long: `Each stdin line becomes one event. A line starting with "!" is urgent.
A line holding a JSON object is decoded as a full event. Decisions are printed
as they are made; "quit" or end of input stops the engine.`,
	Args: cobra.NoArgs,
	RunE: runController,
}

func init() {
	runCmd.Flags().BoolVar(&runNoOracle, "no-oracle", false, "skip the reasoning oracle; every decision is a local fallback")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "also print broadcast turns and safety trips")
}

func runController(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ext := cognition.Externals{Store: st, Bus: bus.New()}
	if !runNoOracle && cfg.Oracle.Addr != "" {
		client, err := oracle.NewGRPCClient(cfg.Oracle.Addr)
		if err != nil {
			return fmt.Errorf("connect oracle at %s: %w", cfg.Oracle.Addr, err)
		}
		defer client.Close()
		ext.Oracle = client
	}

	rt, err := cognition.Build(cfg, ext, log)
	if err != nil {
		return err
	}

	kinds := []bus.Kind{bus.DecisionMade}
	if runVerbose {
		kinds = append(kinds, bus.TurnBroadcast, bus.SafetyTripped, bus.EventSuperseded)
	}
	sub := ext.Bus.Subscribe(64, kinds...)
	defer sub.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Affect-tick controller ready.")
	fmt.Fprintf(cmd.OutOrStdout(), "  DB: %s | Oracle: %s\n", cfg.DBPath, oracleLabel(ext.Oracle != nil, cfg.Oracle.Addr))
	fmt.Fprintln(cmd.OutOrStdout(), "Type an event (or 'quit' to exit):")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return printNotifications(gctx, cmd.OutOrStdout(), sub) })
	// stdin reads cannot be interrupted; the reader is left behind on signal
	go func() {
		defer cancel()
		if err := readEvents(gctx, cmd.InOrStdin(), rt, log); err != nil {
			log.Warn("read events", zap.Error(err))
		}
	}()
	return g.Wait()
}

func oracleLabel(enabled bool, addr string) string {
	if !enabled {
		return "off"
	}
	return addr
}

// #endregion run-cmd

// #region input
// readEvents submits one event per line until quit, EOF or cancellation.
// Reading blocks, so cancellation is only noticed between lines.
func readEvents(ctx context.Context, r io.Reader, rt *cognition.Runtime, log *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		n++
		ev, err := ParseEvent(line)
		if err != nil {
			log.Warn("unreadable event", zap.Int("line", n), zap.Error(err))
			continue
		}
		if err := rt.Submit(ev); err != nil {
			log.Warn("event not accepted", zap.Int("line", n), zap.Error(err))
		}
	}
	return scanner.Err()
}

// ParseEvent turns one input line into an event. JSON objects are decoded
// as-is; plain text gets hints derived from its wording.
func ParseEvent(line string) (pipeline.Event, error) {
	if strings.HasPrefix(line, "{") {
		var ev pipeline.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return pipeline.Event{}, fmt.Errorf("decode event: %w", err)
		}
		if strings.TrimSpace(ev.Text) == "" {
			return pipeline.Event{}, fmt.Errorf("event has no text")
		}
		if ev.Source == "" {
			ev.Source = "stdin"
		}
		return ev, nil
	}

	urgent := strings.HasPrefix(line, "!")
	text := strings.TrimSpace(strings.TrimLeft(line, "!"))
	if text == "" {
		return pipeline.Event{}, fmt.Errorf("event has no text")
	}
	sentiment := lexicon.Sentiment(text)
	salience := 0.5
	if urgent {
		salience = 0.9
	} else if lexicon.IsQuestion(text) || lexicon.IsDirectCommand(text) {
		salience = 0.65
	}
	arousal := 0.3 + 0.4*abs(sentiment)
	if urgent {
		arousal = 0.8
	}
	return pipeline.Event{
		Source:      "stdin",
		Text:        text,
		Salience:    salience,
		ValenceHint: sentiment,
		ArousalHint: arousal,
		Urgent:      urgent,
		ReceivedAt:  time.Now(),
	}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion input

// #region output
func printNotifications(ctx context.Context, w io.Writer, sub *bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.C():
			if !ok {
				return nil
			}
			if line := FormatNotification(n); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}
}

// FormatNotification renders a notification for the terminal. Unknown kinds
// render as an empty string.
func FormatNotification(n bus.Notification) string {
	switch n.Kind {
	case bus.DecisionMade:
		d, ok := n.Payload.(cognition.Decision)
		if !ok {
			return ""
		}
		tag := string(d.Response.DecisionType)
		if d.Response.Degraded {
			tag += ", degraded"
		}
		if !d.Ack.OK {
			tag += ", not delivered"
		}
		return fmt.Sprintf("[%s] (%s) %s", shortID(n.EventID), tag, d.Response.Content)
	case bus.TurnBroadcast:
		return fmt.Sprintf("  ~ %s", payloadText(n.Payload))
	case bus.SafetyTripped:
		return fmt.Sprintf("  ! safety protocol: %s", payloadText(n.Payload))
	case bus.EventSuperseded:
		return fmt.Sprintf("  - %s superseded", shortID(n.EventID))
	}
	return ""
}

func payloadText(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case dialogue.InnerTurn:
		return fmt.Sprintf("%s: %s", v.Lane, v.Proposal)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprint(p)
	}
	return string(b)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
