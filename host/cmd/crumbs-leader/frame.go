package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crumbs/protocol"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	infoFmt = color.New(color.FgYellow).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

func init() {
	rootCmd.AddCommand(encodeCmd, decodeCmd, crcCmd)
}

var encodeCmd = &cobra.Command{
	Use:   "encode <type> <command> [data...]",
	Short: "Print the wire frame of a message as hex",
	Args:  cobra.RangeArgs(2, 2+protocol.DataLength),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := parseMessage(args)
		if err != nil {
			return err
		}
		frame := protocol.Encode(m)
		fmt.Fprintf(cmd.OutOrStdout(), "%x\n", frame[:])
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode and verify a wire frame",
	Long: `Decode a frame given as hex. Spaces and colons between bytes are ignored.

Example:
  crumbs-leader decode 0102000096420000803f0000000000008242000000400000e040c3f548403e`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := parseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		m, err := protocol.Decode(buf)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", errFmt("rejected"), err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m)
		if len(buf) > protocol.MessageSize {
			fmt.Fprintln(cmd.OutOrStdout(), dimFmt(fmt.Sprintf("ignored %d trailing bytes", len(buf)-protocol.MessageSize)))
		}
		return nil
	},
}

var crcCmd = &cobra.Command{
	Use:   "crc <hex>",
	Short: "Print the CRC-8 of arbitrary bytes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := parseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "0x%02x\n", protocol.CRC8(buf))
		return nil
	},
}
