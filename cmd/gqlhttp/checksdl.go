package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/formatter"

	language "github.com/hanpama/gqlhttp/internal/language"
)

func newCheckSDLCmd() *cobra.Command {
	var canonical bool
	cmd := &cobra.Command{
		Use:   "check-sdl <file>",
		Short: "Validate a GraphQL schema file",
		Long:  "Validate a GraphQL schema file and exit non-zero on errors. With --print the schema is written back in canonical form.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read schema")
			}
			sch, err := language.LoadSchema(args[0], string(src))
			if err != nil {
				return errors.Wrapf(err, "invalid schema %s", args[0])
			}
			if canonical {
				formatter.NewFormatter(cmd.OutOrStdout()).FormatSchema(sch)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&canonical, "print", false, "write the validated schema to stdout")
	return cmd
}
