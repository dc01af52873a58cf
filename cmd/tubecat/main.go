// tubecat connects a terminal to a tube: a TCP connection, a listening
// socket, or a spawned command. Traffic can be mirrored to a file and
// hex-dumped to stderr for inspection.
//
// Usage:
//
//	tubecat example.com:4000
//	tubecat --listen :4000
//	tubecat --exec '/bin/sh -i' --tee session.bin
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/io-tubes/tubes/pkg/proctube"
	"github.com/io-tubes/tubes/pkg/teetube"
	"github.com/io-tubes/tubes/pkg/tube"
)

type cli struct {
	Verbose bool   `short:"v" help:"Hex-dump all traffic to stderr."`
	Listen  bool   `short:"l" help:"Listen on addr and serve the first connection."`
	Exec    string `short:"e" placeholder:"CMD" help:"Spawn a command instead of connecting."`
	Tee     string `placeholder:"FILE" help:"Mirror both directions to a file."`
	Raw     bool   `help:"Put the terminal into raw mode for the session."`
	Addr    string `arg:"" optional:"" help:"host:port to connect to (or bind with --listen)."`
}

func main() {
	var args cli
	k := kong.Parse(&args,
		kong.Name("tubecat"),
		kong.Description("Interact with a process, socket, or listener through a tube."),
	)
	k.FatalIfErrorf(run(&args))
}

func run(args *cli) error {
	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	})))

	stream, err := openStream(args)
	if err != nil {
		return err
	}

	if args.Tee != "" {
		f, err := os.Create(args.Tee)
		if err != nil {
			return fmt.Errorf("unable to create tee file: %w", err)
		}
		defer f.Close()
		stream = teetube.New(stream, f, f)
	}

	p := tube.New(stream)
	defer p.Close()

	if args.Raw && term.IsTerminal(int(os.Stdin.Fd())) {
		old, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("unable to enter raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), old)
	}

	err = p.Interactive()
	if errors.Is(err, tube.ErrBrokenTube) {
		slog.Info("remote closed the connection")
		return nil
	}
	return err
}

func openStream(args *cli) (tube.Stream, error) {
	switch {
	case args.Exec != "":
		fields := strings.Fields(args.Exec)
		proc, err := proctube.Start(fields[0], fields[1:]...)
		if err != nil {
			return nil, err
		}
		slog.Info("spawned", "cmd", args.Exec, "pid", proc.Pid())
		return proc, nil
	case args.Listen:
		addr := args.Addr
		if addr == "" {
			addr = ":0"
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("unable to bind %s: %w", addr, err)
		}
		defer ln.Close()
		slog.Info("listening", "addr", ln.Addr())
		conn, err := ln.Accept()
		if err != nil {
			return nil, err
		}
		slog.Info("connected", "peer", conn.RemoteAddr())
		return conn, nil
	case args.Addr != "":
		conn, err := net.Dial("tcp", args.Addr)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to %s: %w", args.Addr, err)
		}
		slog.Info("connected", "peer", conn.RemoteAddr())
		return conn, nil
	default:
		return nil, errors.New("nothing to do: pass an address, --listen, or --exec")
	}
}
