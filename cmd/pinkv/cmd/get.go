package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/pinkv/pkg/di"
	"github.com/ssargent/pinkv/pkg/engine"
)

// ErrKeyNotFound is returned by get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

func newGetCmd(container *di.Container) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a value for a key",
		Long: `Get a value for a key. The value is written to stdout straight from
engine memory.

Example:
  pinkv get mykey
  pinkv get --cf users alice
  pinkv get --raw photo > photo.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cf, _ := cmd.Flags().GetString("cf")
			raw, _ := cmd.Flags().GetBool("raw")

			eng, _, _, err := openEngine(cmd, container, nil)
			if err != nil {
				return err
			}
			defer closeEngine(eng, &err)

			value, err := eng.GetPinned([]byte(args[0]), engine.WithColumnFamily(cf))
			if err != nil {
				return err
			}
			if value == nil {
				return errors.Wrapf(ErrKeyNotFound, "%q", args[0])
			}
			defer value.Close()

			out := cmd.OutOrStdout()
			if _, err := value.WriteTo(out); err != nil {
				return err
			}
			if !raw {
				_, err = fmt.Fprintln(out)
			}
			return err
		},
	}

	columnFamilyFlag(getCmd)
	getCmd.Flags().Bool("raw", false, "Do not append a newline")
	return getCmd
}
