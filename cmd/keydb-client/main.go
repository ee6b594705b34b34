// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// keydb-client is a minimal smoke-test client: one request, one reply,
// no retry, no connection pooling. It exists to exercise the wire
// protocol end to end, not as a production client library.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/nishisan-dev/keydb/internal/connection"
	"github.com/nishisan-dev/keydb/internal/protocol"
)

func main() {
	// -addr is a top-level flag, preceding the get/set subcommand, so
	// it is parsed before os.Args is split on the subcommand word.
	fs := flag.NewFlagSet("keydb-client", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:6379", "server address")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	sub := args[0]
	rest := args[1:]

	switch sub {
	case "get":
		runGet(*addr, rest)
	case "set":
		runSet(*addr, rest)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: keydb-client -addr host:port get -key K")
	fmt.Fprintln(os.Stderr, "       keydb-client -addr host:port set -key K -value V")
}

func runGet(addr string, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	key := fs.String("key", "", "key to fetch")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "Error: -key is required")
		os.Exit(1)
	}

	reply, err := send(addr, bulkArray("GET", *key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printReply(reply)
}

func runSet(addr string, args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	key := fs.String("key", "", "key to set")
	value := fs.String("value", "", "value to store")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "Error: -key is required")
		os.Exit(1)
	}

	reply, err := send(addr, bulkArray("SET", *key, *value))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printReply(reply)
}

func bulkArray(parts ...string) protocol.Frame {
	items := make([]protocol.Frame, len(parts))
	for i, p := range parts {
		items[i] = protocol.NewBulk([]byte(p))
	}
	return protocol.NewArray(items)
}

func send(addr string, req protocol.Frame) (protocol.Frame, error) {
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer netConn.Close()

	conn := connection.New(netConn)
	if err := conn.WriteFrame(req); err != nil {
		return protocol.Frame{}, fmt.Errorf("writing request: %w", err)
	}

	reply, err := conn.ReadFrame()
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("reading reply: %w", err)
	}
	if reply == nil {
		return protocol.Frame{}, fmt.Errorf("server closed the connection without replying")
	}
	return *reply, nil
}

func printReply(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindNull:
		fmt.Println("(nil)")
	case protocol.KindSimple:
		fmt.Println(f.Str)
	case protocol.KindError:
		fmt.Println("(error)", f.Str)
	case protocol.KindBulk:
		fmt.Println(string(f.Bulk))
	case protocol.KindInteger:
		fmt.Println(f.Int)
	default:
		fmt.Printf("%+v\n", f)
	}
}
