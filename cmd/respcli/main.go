// Command respcli is a small demonstration client for respkit, wired the
// way the teacher's cmd/socket.io wires its own maintenance CLI: one
// rootCmd with a handful of subcommands, each doing one thing and
// printing its result to stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodis/respkit/client"
	"github.com/nodis/respkit/resp"
)

var (
	addr     string
	password string
	username string
	db       int
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "respcli",
	Short: "A demonstration RESP client built on respkit",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:6379", "host:port to connect to")
	rootCmd.PersistentFlags().StringVar(&username, "user", "", "AUTH username (optional)")
	rootCmd.PersistentFlags().StringVar(&password, "pass", "", "AUTH password (optional)")
	rootCmd.PersistentFlags().IntVar(&db, "db", 0, "logical database to SELECT")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "dial timeout")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(multiCmd)
}

func newClient() (*client.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := client.New(client.Options{
		Addr:        addr,
		Username:    username,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
		ClientName:  "respcli",
	})
	if err := c.Connect(ctx); err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return c, ctx, cancel, nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect and send PING",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient()
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		v, err := c.Send(ctx, resp.NewCommand("PING"))
		if err != nil {
			return err
		}
		fmt.Println(formatValue(v))
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [channel...]",
	Short: "Subscribe to one or more channels and print incoming messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient()
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		stream, err := c.Subscribe(ctx, args...)
		if err != nil {
			return err
		}
		fmt.Printf("subscribed to %s, waiting for messages (Ctrl-C to stop)\n", strings.Join(args, ", "))
		for msg := range stream.Messages() {
			fmt.Printf("%s: %s\n", msg.Channel, string(msg.Payload))
		}
		return nil
	},
}

var multiCmd = &cobra.Command{
	Use:   "multi",
	Short: "Read commands from stdin, one per line, and execute them as one transaction",
	Long:  "Each line is split on whitespace into a command and its arguments. An empty line ends input and runs EXEC.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient()
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		txn := c.Multi()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				break
			}
			fields := strings.Fields(line)
			if _, err := txn.Queue(ctx, resp.NewCommand(fields[0], fields[1:]...)); err != nil {
				return fmt.Errorf("queue %q: %w", line, err)
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		v, err := txn.Execute(ctx)
		if err != nil {
			return err
		}
		fmt.Println(formatValue(v))
		return nil
	},
}

func formatValue(v resp.Value) string {
	switch v.Type {
	case resp.TypeSimpleString:
		return v.Str
	case resp.TypeError:
		return "(error) " + v.Err.String()
	case resp.TypeInteger:
		return "(integer) " + strconv.FormatInt(v.Int, 10)
	case resp.TypeBulkString:
		if v.Null {
			return "(nil)"
		}
		return string(v.Bulk)
	case resp.TypeArray:
		if v.Null {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = strconv.Itoa(i+1) + ") " + formatValue(e)
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%+v", v)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
