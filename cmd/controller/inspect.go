package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/affect-tick/internal/config"
	"github.com/danielpatrickdp/affect-tick/internal/memory"
	"github.com/danielpatrickdp/affect-tick/internal/store"
)

// #region inspect-cmd
var (
	inspectDB      string
	inspectLast    int
	inspectJSON    bool
	inspectSince   time.Duration
	inspectEmotion string
	inspectMinImp  float64
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show memories, inner turns or decisions stored in the database",
}

var inspectMemoriesCmd = &cobra.Command{
	Use:   "memories [id]",
	Short: "List consolidated memories, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			if len(args) == 1 {
				r, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if inspectJSON {
					return printJSON(cmd.OutOrStdout(), r)
				}
				printMemoryDetail(cmd.OutOrStdout(), r)
				return nil
			}
			f := memory.Filter{EmotionTag: inspectEmotion, MinImportance: inspectMinImp, Limit: inspectLast}
			if inspectSince > 0 {
				f.Since = time.Now().Add(-inspectSince)
			}
			recs, err := st.Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			if inspectJSON {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			printMemoryTable(cmd.OutOrStdout(), recs)
			return nil
		})
	},
}

var inspectTurnsCmd = &cobra.Command{
	Use:   "turns",
	Short: "List recent inner-dialogue turns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(st *store.Store) error {
			turns, err := st.RecentTurns(cmd.Context(), inspectLast)
			if err != nil {
				return err
			}
			if inspectJSON {
				return printJSON(cmd.OutOrStdout(), turns)
			}
			w := cmd.OutOrStdout()
			if len(turns) == 0 {
				fmt.Fprintln(w, "no turns found")
				return nil
			}
			fmt.Fprintf(w, "%-8s  %-10s  %5s  %7s  %-9s  %-16s  %s\n",
				"Event", "Lane", "Chain", "Overall", "Decision", "Reframe", "Proposal")
			fmt.Fprintf(w, "%-8s+-%-10s+-%5s+-%7s+-%-9s+-%-16s+-%s\n",
				"--------", "----------", "-----", "-------", "---------", "----------------", "--------------------")
			for _, t := range turns {
				reframe := "-"
				if t.ReframeApplied {
					reframe = t.ReframeType
				}
				if t.SafetyTriggered {
					reframe += " (safety)"
				}
				fmt.Fprintf(w, "%-8s  %-10s  %5d  %7.3f  %-9s  %-16s  %s\n",
					shortID(t.EventID), t.Lane, t.ChainLength, t.Overall, t.Decision, reframe, clip(t.Proposal, 60))
			}
			return nil
		})
	},
}

var inspectDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List recent decisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(st *store.Store) error {
			entries, err := st.RecentDecisions(inspectLast)
			if err != nil {
				return err
			}
			if inspectJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no decisions found")
				return nil
			}
			fmt.Fprintf(w, "%-8s  %-11s  %5s  %-8s  %-20s  %s\n",
				"Event", "Type", "Conf", "Degraded", "Time", "Content")
			fmt.Fprintf(w, "%-8s+-%-11s+-%5s+-%-8s+-%-20s+-%s\n",
				"--------", "-----------", "-----", "--------", "--------------------", "--------------------")
			for _, e := range entries {
				degraded := "no"
				if e.Degraded {
					degraded = e.Reason
				}
				fmt.Fprintf(w, "%-8s  %-11s  %5.2f  %-8s  %-20s  %s\n",
					shortID(e.EventID), e.DecisionType, e.Confidence, degraded,
					e.CreatedAt.Format("2006-01-02T15:04:05Z"), clip(e.Content, 60))
			}
			return nil
		})
	},
}

func init() {
	inspectCmd.PersistentFlags().StringVar(&inspectDB, "db", "", "path to the database (default from config)")
	inspectCmd.PersistentFlags().IntVar(&inspectLast, "last", 20, "show N most recent rows")
	inspectCmd.PersistentFlags().BoolVar(&inspectJSON, "json", false, "output as JSON instead of a table")
	inspectMemoriesCmd.Flags().DurationVar(&inspectSince, "since", 0, "only memories newer than this")
	inspectMemoriesCmd.Flags().StringVar(&inspectEmotion, "emotion", "", "only memories with this emotion tag")
	inspectMemoriesCmd.Flags().Float64Var(&inspectMinImp, "min-importance", 0, "only memories at least this important")
	inspectCmd.AddCommand(inspectMemoriesCmd, inspectTurnsCmd, inspectDecisionsCmd)
}

func withStore(fn func(*store.Store) error) error {
	path := inspectDB
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.DBPath
	}
	st, err := store.NewStore(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// #endregion inspect-cmd

// #region render
func printMemoryTable(w io.Writer, recs []memory.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no memories found")
		return
	}
	fmt.Fprintf(w, "%-8s  %-10s  %6s  %8s  %6s  %-20s  %s\n",
		"ID", "Emotion", "Import", "Strength", "Access", "Time", "Summary")
	fmt.Fprintf(w, "%-8s+-%-10s+-%6s+-%8s+-%6s+-%-20s+-%s\n",
		"--------", "----------", "------", "--------", "------", "--------------------", "--------------------")
	for _, r := range recs {
		fmt.Fprintf(w, "%-8s  %-10s  %6.2f  %8.2f  %6d  %-20s  %s\n",
			shortID(r.ID), r.EmotionTag, r.Importance, r.Strength, r.AccessCount,
			r.Timestamp.Format("2006-01-02T15:04:05Z"), clip(r.Summary, 60))
	}
}

func printMemoryDetail(w io.Writer, r memory.Record) {
	fmt.Fprintf(w, "ID:          %s\n", r.ID)
	fmt.Fprintf(w, "Time:        %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Emotion:     %s\n", r.EmotionTag)
	fmt.Fprintf(w, "Importance:  %.3f\n", r.Importance)
	fmt.Fprintf(w, "Strength:    %.3f\n", r.Strength)
	fmt.Fprintf(w, "Accessed:    %d (last %s)\n", r.AccessCount, r.LastAccess.Format(time.RFC3339))
	fmt.Fprintf(w, "Keywords:    %s\n", strings.Join(r.Keywords, ", "))
	fmt.Fprintf(w, "Summary:     %s\n", r.Summary)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// #endregion render
