package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"crumbs/host/leader"
	"crumbs/protocol"
)

func init() {
	rootCmd.AddCommand(replCmd)
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Send and request messages interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTransport()
		if err != nil {
			return err
		}
		defer t.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "crumbs leader running on bus %d\n", t.Bus())
		printUsage(out)
		return runREPL(t, cmd.InOrStdin(), out)
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  Send a message with comma-separated values:")
	fmt.Fprintln(w, "    address,typeID,commandType,data0,data1,data2,data3,data4,data5,data6")
	fmt.Fprintln(w, "  Example:")
	fmt.Fprintln(w, "    0x08,1,1,75.0,1.0,0.0,65.0,2.0,7.0,3.14")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Request a message from a peripheral:")
	fmt.Fprintln(w, "    request,0x08")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Type 'exit' to quit.")
}

// runREPL reads commands from in until EOF or exit. Failed commands are
// reported and the loop continues.
func runREPL(t *leader.Transport, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		quit, err := handleLine(t, scanner.Text(), out)
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", errFmt("error:"), err)
		}
		if quit {
			break
		}
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

// splitLine tokenizes a line on commas and whitespace. Quotes and #
// comments follow shell rules.
func splitLine(line string) ([]string, error) {
	return shlex.Split(strings.ReplaceAll(line, ",", " "))
}

func handleLine(t *leader.Transport, line string, out io.Writer) (bool, error) {
	fields, err := splitLine(line)
	if err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return true, nil
	case "help", "?":
		printUsage(out)
		return false, nil
	case "request":
		if len(fields) != 2 {
			return false, fmt.Errorf("invalid request format, expected request,<address>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		m, err := t.Request(addr)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, infoFmt("received:"), m)
		return false, nil
	}

	if len(fields) < 3 || len(fields) > 3+protocol.DataLength {
		return false, fmt.Errorf("expected 3 to %d fields, got %d", 3+protocol.DataLength, len(fields))
	}
	addr, err := parseAddress(fields[0])
	if err != nil {
		return false, err
	}
	m, err := parseMessage(fields[1:])
	if err != nil {
		return false, err
	}
	if err := t.Send(m, addr); err != nil {
		return false, err
	}
	fmt.Fprintln(out, okFmt("sent"))
	return false, nil
}
