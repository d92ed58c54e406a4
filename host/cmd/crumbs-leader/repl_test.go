package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crumbs/host/i2c/i2ctest"
	"crumbs/host/leader"
	"crumbs/protocol"
)

func openMock(t *testing.T) (*leader.Transport, *i2ctest.Driver) {
	t.Helper()
	color.NoColor = true
	driver := i2ctest.NewDriver()
	tr := leader.New(driver, 1)
	require.NoError(t, tr.Open())
	t.Cleanup(func() { _ = tr.Close() })
	return tr, driver
}

func TestREPLSendAndRequest(t *testing.T) {
	tr, driver := openMock(t)

	reply := protocol.Encode(protocol.NewMessage(1, 3, 42))
	driver.QueueResponse(0x08, reply[:])

	in := strings.NewReader(strings.Join([]string{
		"0x08,1,1,75.0,1.0,0.0,65.0,2.0,7.0,3.14",
		"",
		"# comment",
		"request,0x08",
		"exit",
		"0x09,1,1",
	}, "\n"))
	var out bytes.Buffer
	require.NoError(t, runREPL(tr, in, &out))

	txs := driver.Transactions()
	require.Len(t, txs, 2)
	want := protocol.Encode(protocol.NewMessage(1, 1, 75, 1, 0, 65, 2, 7, 3.14))
	assert.Equal(t, i2ctest.OpWrite, txs[0].Op)
	assert.Equal(t, want[:], txs[0].Data)
	assert.Equal(t, i2ctest.OpRead, txs[1].Op)

	assert.Contains(t, out.String(), "sent")
	assert.Contains(t, out.String(), "received: Message(typeID=1, commandType=3")
}

func TestREPLReportsErrorsAndContinues(t *testing.T) {
	tr, driver := openMock(t)

	in := strings.NewReader("request\n0x80,1,1\n0x08,1\nrequest,0x08\n0x08 2 2\n")
	var out bytes.Buffer
	require.NoError(t, runREPL(tr, in, &out))

	// Only the well-formed lines reach the bus
	txs := driver.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, i2ctest.OpRead, txs[0].Op)
	assert.Equal(t, i2ctest.OpWrite, txs[1].Op)

	assert.Equal(t, 4, strings.Count(out.String(), "error:"))
	assert.Contains(t, out.String(), "invalid address")
}

func TestFrameCommands(t *testing.T) {
	color.NoColor = true
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		return out.String(), err
	}

	frameHex := "0102000096420000803f0000000000008242000000400000e040c3f548403e"

	out, err := run("encode", "1", "2", "75", "1", "0", "65", "2", "7", "3.14")
	require.NoError(t, err)
	assert.Equal(t, frameHex+"\n", out)

	out, err = run("decode", frameHex)
	require.NoError(t, err)
	assert.Contains(t, out, "Message(typeID=1, commandType=2, data=[75.00, 1.00, 0.00, 65.00, 2.00, 7.00, 3.14], crc8=62)")

	out, err = run("decode", frameHex[:60]+"00")
	assert.ErrorIs(t, err, protocol.ErrChecksumMismatch)
	assert.Contains(t, out, "rejected")

	_, err = run("decode", "0102")
	assert.ErrorIs(t, err, protocol.ErrFrameTooShort)

	out, err = run("crc", "31 32 33 34 35 36 37 38 39")
	require.NoError(t, err)
	assert.Equal(t, "0xf4\n", out)
}
