package cmd

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/pinkv/pkg/di"
	"github.com/ssargent/pinkv/pkg/engine"
)

func newPutCmd(container *di.Container) *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Put a key-value pair",
		Long: `Put a key-value pair into the store. A value of "-" is read from stdin.

Example:
  pinkv put mykey myvalue
  pinkv put --cf users alice '{"name":"Alice"}'
  cat photo.jpg | pinkv put photo -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			key := []byte(args[0])
			value := []byte(args[1])
			if args[1] == "-" {
				if value, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return errors.Wrap(err, "read value from stdin")
				}
			}
			cf, _ := cmd.Flags().GetString("cf")
			syncWrite, _ := cmd.Flags().GetBool("sync")

			eng, _, _, err := openEngine(cmd, container, nil)
			if err != nil {
				return err
			}
			defer closeEngine(eng, &err)

			opts := []engine.WriteOption{engine.WithWriteColumnFamily(cf)}
			if syncWrite {
				opts = append(opts, engine.WithSync())
			}
			if err := eng.Put(key, value, opts...); err != nil {
				return err
			}

			cmd.Printf("Put %s (%d bytes)\n", args[0], len(value))
			return nil
		},
	}

	columnFamilyFlag(putCmd)
	putCmd.Flags().Bool("sync", true, "Make the write durable before returning")
	return putCmd
}
