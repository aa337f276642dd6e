package main

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the model capability table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := uitable.New()
			table.MaxColWidth = 50
			table.AddRow("PREFIX", "VENDOR", "TEMPERATURE", "RESPONSES", "BYOK", "PROMPT $/MTOK", "COMPLETION $/MTOK")
			for _, e := range catalog.Entries() {
				table.AddRow(
					e.Prefix,
					string(e.Vendor),
					yesNo(e.SupportsTemperature),
					yesNo(e.UsesResponsesEndpoint),
					yesNo(e.SupportsBYOK),
					price(e.PromptUSDPerMTok),
					price(e.CompletionUSDPerMTok),
				)
			}
			fmt.Println(table.String())
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func price(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
