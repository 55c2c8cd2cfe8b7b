package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/client"
)

var (
	agentURLFlag  string
	streamFlag    bool
	transportFlag string

	clientCmd = &cobra.Command{
		Use:   "client [message]",
		Short: "Send a message to a remote A2A agent",
		Long:  longClient,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var opts []client.Option

			if transportFlag != "" {
				opts = append(opts, client.WithTransport(transportFlag))
			}

			remote, err := client.Resolve(ctx, agentURLFlag, opts...)

			if err != nil {
				return err
			}

			log.Info(
				"connected",
				"agent", remote.Card().Name,
				"transport", remote.Transport(),
			)

			params := a2a.MessageSendParams{
				Message: *a2a.NewTextMessage(a2a.RoleUser, strings.Join(args, " ")),
			}

			if streamFlag {
				return runStream(ctx, remote, params)
			}

			result, err := remote.SendMessage(ctx, params)

			if err != nil {
				return err
			}

			printEvent(result)
			return nil
		},
	}

	cardCmd = &cobra.Command{
		Use:   "card",
		Short: "Fetch and display a remote agent's card",
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, err := client.Resolve(cmd.Context(), agentURLFlag)

			if err != nil {
				return err
			}

			fmt.Println(remote.Card())
			return nil
		},
	}
)

func runStream(ctx context.Context, remote *client.Client, params a2a.MessageSendParams) error {
	stream, err := remote.SendMessageStream(ctx, params)

	if err != nil {
		return err
	}

	defer stream.Close()

	for evt := range stream.Events() {
		printEvent(evt)
	}

	return stream.Err()
}

func printEvent(evt a2a.Event) {
	switch e := evt.(type) {
	case *a2a.Task:
		fmt.Println(e)
	case *a2a.Message:
		fmt.Println(e.String())
	case *a2a.TaskStatusUpdateEvent:
		log.Info("status", "task_id", e.TaskID, "state", e.Status.State, "final", e.Final)
	case *a2a.TaskArtifactUpdateEvent:
		log.Info("artifact", "task_id", e.TaskID, "artifact_id", e.Artifact.ArtifactID)
	}
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(cardCmd)

	clientCmd.PersistentFlags().StringVarP(&agentURLFlag, "url", "u", "http://localhost:3210", "Base URL of the remote agent")
	clientCmd.Flags().BoolVarP(&streamFlag, "stream", "s", false, "Stream events instead of waiting for the final result")
	clientCmd.Flags().StringVarP(&transportFlag, "transport", "t", "", "Force a transport (JSONRPC or HTTP+JSON)")
}

var longClient = `
Send a message to a remote A2A agent. The agent card is resolved from the
well-known path and the preferred transport is selected automatically.

Examples:
  # Blocking send, print the final result
  a2a-core client --url http://localhost:3210 "summarize this repo"

  # Stream events as they happen
  a2a-core client --stream "summarize this repo"
`
