// mcpctl is a small client for poking at a running mcpcore server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"procdexeh/mcpcore/internal/client"
	"procdexeh/mcpcore/internal/mcp"
)

const defaultURL = "http://localhost:6969/mcp"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	url := os.Getenv("MCPCORE_URL")
	if url == "" {
		url = defaultURL
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sender, closeFn, err := connect(ctx, url)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()
	c := client.New(sender)

	switch cmd {
	case "info":
		err = cmdInfo(ctx, c)
	case "ping":
		err = cmdPing(ctx, c)
	case "tools":
		err = cmdTools(ctx, c)
	case "call":
		err = cmdCall(ctx, sender, args)
	case "raw":
		err = cmdRaw(ctx, sender, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: mcpctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  info                          Initialize and show server info")
	fmt.Println("  ping                          Check the server answers")
	fmt.Println("  tools                         List registered tools")
	fmt.Println("  call <tool> [json] [--bg]     Call a tool, optionally as a background job")
	fmt.Println("  raw <method> [json]           Send any method and print the raw response")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Printf("  MCPCORE_URL                   Server endpoint (default: %s)\n", defaultURL)
	fmt.Println("                                ws:// and wss:// URLs use the WebSocket transport")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  mcpctl call echo '{\"text\":\"hi\",\"uppercase\":true}'")
	fmt.Println("  mcpctl call calculate '{\"expression\":\"2 + 3\"}' --bg")
	fmt.Println("  MCPCORE_URL=ws://localhost:6969/mcp/ws mcpctl tools")
	fmt.Println()
}

func connect(ctx context.Context, url string) (client.Sender, func(), error) {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		ws, err := client.Dial(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { ws.Close() }, nil
	}
	return client.NewHTTPClient(url), func() {}, nil
}

func cmdInfo(ctx context.Context, c *client.Client) error {
	resp, err := c.Initialize(ctx, mcp.ClientInfo{Name: "mcpctl", Version: "dev"})
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("%s %s\n", resp.ServerInfo.Name, resp.ServerInfo.Version)
	fmt.Printf("protocol: %s\n", resp.ProtocolVersion)
	caps := resp.Capabilities
	fmt.Printf("tools: %t  resources: %t  prompts: %t  logging: %t\n",
		caps.Tools != nil, caps.Resources != nil, caps.Prompts != nil, caps.Logging != nil)
	return nil
}

func cmdPing(ctx context.Context, c *client.Client) error {
	start := time.Now()
	if err := c.Call(ctx, "ping", nil, nil); err != nil {
		return err
	}
	color.Green("pong (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdTools(ctx context.Context, c *client.Client) error {
	list, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No tools registered")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	return w.Flush()
}

func cmdCall(ctx context.Context, sender client.Sender, args []string) error {
	background := false
	var rest []string
	for _, a := range args {
		if a == "--bg" || a == "--background" {
			background = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) == 0 {
		return fmt.Errorf("usage: mcpctl call <tool> [json-args] [--bg]")
	}

	params := mcp.CallToolRequest{Name: rest[0]}
	if len(rest) > 1 {
		if err := json.Unmarshal([]byte(rest[1]), &params.Arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	req, err := mcp.NewRequest("tools/call", params)
	if err != nil {
		return err
	}
	if background {
		req.Meta = map[string]json.RawMessage{mcp.MetaBackground: json.RawMessage("true")}
	}

	resp, err := sender.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	var out mcp.CallToolResponse
	if err := resp.DecodeResult(&out); err != nil {
		return err
	}
	if out.IsProgress != nil && *out.IsProgress {
		color.Yellow("queued\n")
	}
	for _, c := range out.Content {
		switch c.Type {
		case mcp.ContentText:
			fmt.Println(c.Text)
		case mcp.ContentImage:
			fmt.Printf("[image %s, %d bytes base64]\n", c.MimeType, len(c.Data))
		default:
			fmt.Printf("[%s]\n", c.Type)
		}
	}
	return nil
}

func cmdRaw(ctx context.Context, sender client.Sender, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: mcpctl raw <method> [json-params]")
	}
	var params any
	if len(args) > 1 {
		params = json.RawMessage(args[1])
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("params are not valid JSON")
		}
	}
	req, err := mcp.NewRequest(args[0], params)
	if err != nil {
		return err
	}
	resp, err := sender.Send(ctx, req)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	if resp.Error != nil {
		color.Red("%s\n", data)
		return nil
	}
	color.Green("%s\n", data)
	return nil
}
