package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initStoreCmd = &cobra.Command{
	Use:   "init-store",
	Short: "Create the search store collections and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		for _, collection := range collections {
			if err := a.store.EnsureCollection(ctx, collection); err != nil {
				return err
			}
		}
		return nil
	},
}

var dropStoreConfirmed bool

var dropStoreCmd = &cobra.Command{
	Use:   "drop-store",
	Short: "Drop all search store collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dropStoreConfirmed {
			return fmt.Errorf("refusing to drop collections without --yes")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		for _, collection := range collections {
			if err := a.store.DropCollection(ctx, collection); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	dropStoreCmd.Flags().BoolVar(&dropStoreConfirmed, "yes", false, "confirm dropping all collections")
}
