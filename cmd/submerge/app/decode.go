package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/output"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE",
		Short: "Print the decoded text of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := output.Read(args[0])
			if err != nil {
				return err
			}
			text, err := encode.Decode(content)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
}
