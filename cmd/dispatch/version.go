package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chipp-ai/dispatch-sub022/version"
)

func newVersionCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			switch outputFormat {
			case "json":
				s, err := info.ToJSONIndent()
				if err != nil {
					return err
				}
				fmt.Println(s)
			case "short":
				fmt.Println(info.ShortString())
			default:
				fmt.Println(info.Text())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, short)")
	return cmd
}
