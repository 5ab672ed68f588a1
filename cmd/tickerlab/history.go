package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tickerlab/internal/ux"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse saved analyses",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved analyses, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Print a saved report",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete SESSION_ID",
	Short: "Delete a saved analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := openHistory(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	sessions := svc.Refresh(ctx)
	if len(sessions) == 0 {
		fmt.Println("No saved analyses yet. Run `tickerlab analyze SUBJECT` to create one.")
		return nil
	}
	for _, sess := range sessions {
		fmt.Println(ux.SessionLine(sess))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := openHistory(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())
	svc.Refresh(ctx)

	sess, err := resolveSession(svc, args[0])
	if err != nil {
		return err
	}

	fmt.Println(ux.SessionHeader(sess))
	report := sess.SynthesizedReport()
	if report == "" {
		fmt.Println("This session has no synthesized report.")
		return nil
	}
	fmt.Println(ux.RenderMarkdown(report, plainOutput || !isTTY()))
	if srcs := ux.SourceList(sess); srcs != "" {
		fmt.Println(srcs)
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := openHistory(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())
	svc.Refresh(ctx)

	sess, err := resolveSession(svc, args[0])
	if err != nil {
		return err
	}
	if !svc.Delete(ctx, sess.ID) {
		return fmt.Errorf("failed to delete session %s", sess.ID)
	}
	fmt.Printf("Deleted %s (%s)\n", sess.SubjectLabel, sess.ID)
	return nil
}
