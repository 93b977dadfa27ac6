package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/subscription-api/pkg/config"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

func newSignEventCmd() *cobra.Command {
	var (
		file           string
		eventType      string
		sessionID      string
		subscriptionID string
	)

	cmd := &cobra.Command{
		Use:   "sign-event",
		Short: "Sign a sandbox webhook payload",
		Long: "Prints the " + subscription.SandboxSignatureHeader + " value for a payload read from --file " +
			"(or stdin with -), or for an event built from --type, --session and --subscription.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var scfg subscription.SandboxConfig
			if err := config.Load(&scfg); err != nil {
				return err
			}

			var (
				payload []byte
				err     error
			)
			switch {
			case file == "-":
				payload, err = io.ReadAll(cmd.InOrStdin())
			case file != "":
				payload, err = os.ReadFile(file)
			case eventType != "":
				payload, err = subscription.SandboxEventPayload(eventType, sessionID, subscriptionID)
			default:
				return errors.New("either --file or --type is required")
			}
			if err != nil {
				return err
			}

			sig, err := subscription.SignSandboxEvent(scfg.WebhookSecret, payload, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if file == "" {
				fmt.Fprintf(out, "%s\n", payload)
			}
			fmt.Fprintf(out, "%s: %s\n", subscription.SandboxSignatureHeader, sig)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "payload file, - for stdin")
	cmd.Flags().StringVar(&eventType, "type", "", "event type, e.g. "+subscription.SandboxEventCheckoutCompleted)
	cmd.Flags().StringVar(&sessionID, "session", "", "checkout session id")
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "provider subscription id")
	return cmd
}
