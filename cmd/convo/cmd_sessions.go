package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your chat sessions",
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show quota and message counts",
	RunE:  runUsage,
}

func init() {
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	if a.tokens.Authenticated() {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		client := a.client()
		page := 1
		total := 0
		for {
			sessions, pagination, err := client.List(ctx, page, a.cfg.PageSize)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				h := s.History()
				fmt.Printf("%-36s  %-19s  %s\n", s.ID, h.UpdatedAt.Format("2006-01-02 15:04:05"), h.Title)
			}
			total += len(sessions)
			if len(sessions) == 0 || total >= pagination.Total || pagination.Total == 0 {
				break
			}
			page++
		}
		if total == 0 {
			fmt.Println("No sessions.")
		}
		return nil
	}

	// Offline: show the local collection.
	histories := a.local.LoadHistories()
	if len(histories) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, h := range histories {
		fmt.Printf("%-36s  %-19s  %s (%d messages)\n", h.ID, h.UpdatedAt.Format("2006-01-02 15:04:05"), h.Title, len(h.Messages))
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	id := args[0]

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	if a.tokens.Authenticated() {
		if err := a.client().Delete(ctx, id); err != nil {
			return err
		}
	}

	// Drop any local copy referencing the same session.
	histories := a.local.LoadHistories()
	kept := histories[:0]
	for _, h := range histories {
		if h.ID != id && h.RemoteID != id {
			kept = append(kept, h)
		}
	}
	if len(kept) != len(histories) {
		a.local.SaveHistories(kept)
	}

	logger.Info("session deleted", zap.String("id", id))
	fmt.Println("Deleted.")
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	if a.tokens.Authenticated() {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		snapshot, err := a.client().GetUsage(ctx)
		if err != nil {
			return err
		}
		a.tracker.SetSnapshot(snapshot)
		defer func() { _ = a.tracker.Save() }()

		printWindow := func(label string, current, limit int) {
			if limit == 0 {
				fmt.Printf("%-8s %d (unlimited)\n", label, current)
				return
			}
			fmt.Printf("%-8s %d / %d\n", label, current, limit)
		}
		printWindow("Daily", snapshot.Daily.Current, snapshot.Daily.Limit)
		printWindow("Monthly", snapshot.Monthly.Current, snapshot.Monthly.Limit)
	}

	stats := a.tracker.Stats()
	fmt.Printf("Sent %d, received %d on this device\n", stats.Total.Sent, stats.Total.Received)
	return nil
}
