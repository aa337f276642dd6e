package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chipp-ai/dispatch-sub022/llm"
)

type chatOptions struct {
	model       string
	system      string
	temperature float64
	maxTokens   int
	stream      bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send a single prompt to a model (diagnostic, unbilled)",
		Long: `Send a single prompt to a model and print the reply.

This command talks to the vendor directly with the configured vendor key and
carries no billing attribution. It exists for connectivity and capability
diagnostics only; end-user traffic must go through the billed path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, root, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "gpt-4o-mini", "model name")
	cmd.Flags().StringVar(&opts.system, "system", "", "system prompt")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", -1, "sampling temperature (unset if negative)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "max completion tokens (unset if zero)")
	cmd.Flags().BoolVar(&opts.stream, "stream", true, "stream the reply as it is generated")
	return cmd
}

func runChat(cmd *cobra.Command, root *rootOptions, opts *chatOptions, prompt string) error {
	factory, err := loadFactory(root)
	if err != nil {
		return err
	}
	client, err := factory.CreateUnbilled(opts.model)
	if err != nil {
		return err
	}

	var msgs []llm.Message
	if opts.system != "" {
		msgs = append(msgs, llm.System(opts.system))
	}
	msgs = append(msgs, llm.User(prompt))

	var reqOpts []llm.RequestOption
	if opts.temperature >= 0 {
		reqOpts = append(reqOpts, llm.WithTemperature(opts.temperature))
	}
	if opts.maxTokens > 0 {
		reqOpts = append(reqOpts, llm.WithMaxTokens(opts.maxTokens))
	}
	req := llm.BuildChatRequest(opts.model, msgs, reqOpts...)

	ctx := cmd.Context()
	if !opts.stream {
		resp, err := client.Chat(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(resp.FirstText())
		printUsage(resp.Usage)
		return nil
	}

	stream, err := client.ChatStream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	var acc llm.Accumulator
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		acc.Apply(ev)
		if ev.Kind == llm.StreamEventPartDelta && ev.PartDelta.Type == llm.ContentPartText {
			fmt.Print(ev.PartDelta.TextDelta)
		}
		if ev.Done() {
			break
		}
	}
	fmt.Println()
	printUsage(acc.Usage())
	return nil
}

func printUsage(u *llm.Usage) {
	if u == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "tokens: prompt=%d completion=%d total=%d\n",
		u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}
