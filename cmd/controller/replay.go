package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/config"
	"github.com/danielpatrickdp/affect-tick/internal/logging"
	"github.com/danielpatrickdp/affect-tick/internal/replay"
)

// #region replay-cmd
var replayJSON bool

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.json>",
	Short: "Replay a fixture through the affect and dialogue engines",
	Long: `Replays each step of a fixture in memory, checks engine invariants and
compares outcomes against the fixture's expectations. Exits non-zero on any
mismatch or failed check.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "output step results as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	f, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}
	rcfg := replay.DefaultConfig()
	rcfg.Affect = cfg.Affect
	rcfg.Dialogue = cfg.Dialogue
	rcfg.Personality = cfg.Personality
	rcfg.Scheduler = cfg.Scheduler
	rcfg.Eval.MaxChain = cfg.Dialogue.MaxChain
	rcfg.Eval.MinInterval = cfg.Scheduler.MinInterval
	rcfg.Eval.MaxInterval = cfg.Scheduler.MaxInterval

	results, err := replay.Replay(cmd.Context(), f, rcfg, log.Named("replay"))
	if err != nil {
		return err
	}
	mismatches := replay.CheckExpected(f, results)
	summary := replay.Summarize(results)
	log.Info("replay finished",
		zap.String("fixture", args[0]),
		zap.Int("steps", summary.Steps),
		zap.Int("mismatches", len(mismatches)),
		zap.Int("eval_fails", summary.EvalFails))

	w := cmd.OutOrStdout()
	if replayJSON {
		if err := printJSON(w, results); err != nil {
			return err
		}
	} else {
		if f.Description != "" {
			fmt.Fprintf(w, "%s\n\n", f.Description)
		}
		fmt.Fprintf(w, "%-16s  %-10s  %-9s  %5s  %-12s  %8s  %s\n",
			"Step", "Lane", "Decision", "Turns", "Emotion", "Interval", "Checks")
		fmt.Fprintf(w, "%-16s+-%-10s+-%-9s+-%5s+-%-12s+-%8s+-%s\n",
			"----------------", "----------", "---------", "-----", "------------", "--------", "------")
		for _, r := range results {
			checks := "ok"
			if !r.Eval.Passed {
				checks = r.Eval.Reason
			}
			fmt.Fprintf(w, "%-16s  %-10s  %-9s  %5d  %-12s  %6dms  %s\n",
				clip(r.StepID, 16), r.Lane, r.Decision, len(r.Turns), r.Emotion, r.Interval, checks)
		}
		fmt.Fprintf(w, "\n%d steps: %d broadcast, %d discarded, %d revisions, %d safety trips\n",
			summary.Steps, summary.Broadcasts, summary.Discards, summary.Revisions, summary.SafetyTrips)
		for _, m := range mismatches {
			fmt.Fprintf(w, "MISMATCH %s\n", m)
		}
	}

	if len(mismatches) > 0 || summary.EvalFails > 0 {
		return fmt.Errorf("replay: %d mismatches, %d failed checks", len(mismatches), summary.EvalFails)
	}
	return nil
}

// #endregion replay-cmd
