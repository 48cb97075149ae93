package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/pinkv/pkg/di"
	"github.com/ssargent/pinkv/pkg/engine"
)

func newDeleteCmd(container *di.Container) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Long: `Delete a key from the store. Deleting an absent key succeeds.

Example:
  pinkv delete mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cf, _ := cmd.Flags().GetString("cf")

			eng, _, _, err := openEngine(cmd, container, nil)
			if err != nil {
				return err
			}
			defer closeEngine(eng, &err)

			if err := eng.Delete([]byte(args[0]), engine.WithWriteColumnFamily(cf), engine.WithSync()); err != nil {
				return err
			}
			cmd.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	columnFamilyFlag(deleteCmd)
	return deleteCmd
}
