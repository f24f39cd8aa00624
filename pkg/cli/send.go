package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/client"
	"github.com/peterlharding/dserver/pkg/config"
)

type sendFlags struct {
	addr     string
	wsURL    string
	language string
	timeout  time.Duration
	pidFile  string
}

func newSendCmd(g *globalFlags) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send <request>...",
		Short: "Send raw protocol requests and print the replies",
		Long: `Send each request over one connection and print one reply per line. The
server address is taken from --addr, then from the PID file of the data
directory, then localhost on the default port.`,
		Example: `  # Register a source and read from it
  dserver send 'REG|accounts' 'GETN|0'

  # Use the WebSocket endpoint
  dserver send --ws ws://localhost:8000/ws 'GETK|2|VIC'

  # Ask for structured replies
  dserver send --lang JSON 'REG|accounts'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, g, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.addr, "addr", "a", "", "TCP address of the server (host:port)")
	fl.StringVar(&f.wsURL, "ws", "", "WebSocket URL of the server, e.g. ws://localhost:8000/ws")
	fl.StringVar(&f.language, "lang", "", "Send INIT|<lang> before the requests")
	fl.DurationVar(&f.timeout, "timeout", 10*time.Second, "Timeout per request")
	fl.StringVar(&f.pidFile, "pid-file", "", "Path to PID file (default: dserver.pid in the data directory)")
	return cmd
}

func runSend(cmd *cobra.Command, g *globalFlags, f *sendFlags, requests []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		c   *client.Client
		err error
	)
	if f.wsURL != "" {
		c, err = client.DialWebSocket(ctx, f.wsURL, client.WithTimeout(f.timeout))
	} else {
		c, err = client.Dial(ctx, f.serverAddr(g), client.WithTimeout(f.timeout))
	}
	if err != nil {
		return err
	}
	defer c.Close()

	if f.language != "" {
		if _, err := c.Send(ctx, "INIT|"+f.language); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	for _, req := range requests {
		reply, err := c.Send(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, reply)
	}
	return nil
}

func (f *sendFlags) serverAddr(g *globalFlags) string {
	if f.addr != "" {
		return f.addr
	}
	if info, err := ReadPIDFile(g.pidPath(f.pidFile)); err == nil && info.IsRunning() {
		if addr := info.TCPAddr(); addr != "" {
			return addr
		}
	}
	return net.JoinHostPort("localhost", strconv.Itoa(config.DefaultTCPPort))
}
