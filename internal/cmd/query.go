package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sriscode/MobileArc/internal/config"
	"github.com/sriscode/MobileArc/internal/coordinator"
)

var queryUser string

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run a single query through the agent and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryUser, "user", "", "user id (defaults to config default_user_id)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "query")
	defer span.End()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	userID := queryUser
	if userID == "" {
		userID = cfg.DefaultUserID
	}

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.coord.SyncTransactions(ctx, userID); err != nil {
		return err
	}

	txns, err := st.gateway.RecentTransactions(ctx, userID, 100)
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}

	resp, err := st.coord.Process(ctx, strings.Join(args, " "), coordinator.UserContext{
		UserID:             userID,
		RecentTransactions: txns,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Text)
	if draft := st.coord.PendingTransfer(); draft != nil {
		fmt.Printf("\nPending transfer %s: $%.2f from %s to %s (awaiting approval)\n",
			draft.ID, draft.Amount, draft.FromAccount, draft.ToAccount)
	}
	return nil
}
