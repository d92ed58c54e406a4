package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crumbs/protocol"
)

var (
	retries      int
	retryBackoff time.Duration
)

func init() {
	for _, cmd := range []*cobra.Command{sendCmd, requestCmd} {
		cmd.Flags().IntVarP(&retries, "retries", "r", 0, "Retry transport failures this many times")
		cmd.Flags().DurationVar(&retryBackoff, "retry-backoff", 10*time.Millisecond, "Delay between retries")
		rootCmd.AddCommand(cmd)
	}
}

var sendCmd = &cobra.Command{
	Use:   "send <addr> <type> <command> [data...]",
	Short: "Send a message to a peripheral",
	Long: `Encode a message and write it to a peripheral in one bus transaction.
Missing data values are sent as zero.

Examples:
  crumbs-leader send 0x08 1 1 75.0 1.0 0.0 65.0 2.0 7.0 3.14
  crumbs-leader --driver bridge --device /dev/ttyACM0 send 8 1 2`,
	Args: cobra.RangeArgs(3, 3+protocol.DataLength),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		m, err := parseMessage(args[1:])
		if err != nil {
			return err
		}

		t, err := openTransport()
		if err != nil {
			return err
		}
		defer t.Close()

		if err := withRetries(retries, retryBackoff, func() error { return t.Send(m, addr) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s to %s\n", okFmt("sent"), m, addr)
		return nil
	},
}

var requestCmd = &cobra.Command{
	Use:   "request <addr>",
	Short: "Request a message from a peripheral",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}

		t, err := openTransport()
		if err != nil {
			return err
		}
		defer t.Close()

		var m protocol.Message
		err = withRetries(retries, retryBackoff, func() error {
			var err error
			m, err = t.Request(addr)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m)
		return nil
	},
}
