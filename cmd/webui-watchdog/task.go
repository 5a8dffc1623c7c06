package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yourusername/webui-watchdog/internal/config"
	"github.com/yourusername/webui-watchdog/internal/session"
)

// newTaskCmd manages the persisted in-flight task id
func newTaskCmd() *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect or change the persisted in-flight task id",
	}

	taskCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the persisted task id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(ctx context.Context, store *session.Store) error {
					id, ok, err := store.Get(ctx, session.TaskKey)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "no task")
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <id>",
			Short: "Persist a task id to resume after the next reconnect",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(ctx context.Context, store *session.Store) error {
					return store.Set(ctx, session.TaskKey, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "new",
			Short: "Generate, persist and print a new task id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(ctx context.Context, store *session.Store) error {
					id := session.NewTaskID()
					if err := store.Set(ctx, session.TaskKey, id); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the persisted task id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(ctx context.Context, store *session.Store) error {
					return store.Delete(ctx, session.TaskKey)
				})
			},
		},
	)

	return taskCmd
}

func withStore(fn func(ctx context.Context, store *session.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := session.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	return fn(context.Background(), store)
}
