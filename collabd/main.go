package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/bringyour/collab/collab"
)

const CollabdVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Collaborative markdown server.

The websocket url is printed on stdout at start. The operator console on
stdin accepts QUIT (refused while sessions are active), DOC? and LOG?.

Usage:
    collabd [--listen=<address>] [--roles=<path>] [--snapshot=<path>]
        [--queue_max=<queue_max>] <interval_ms>
    collabd -h | --help
    collabd --version

Options:
    --listen=<address>       Listen address [default: 127.0.0.1:0].
    --roles=<path>           Role file path [default: roles.txt].
    --snapshot=<path>        Snapshot file path [default: doc.md].
    --queue_max=<queue_max>  Command queue capacity [default: 4096].
    -h --help                Show this screen.
    --version                Show version.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CollabdVersion)
	if err != nil {
		panic(err)
	}

	intervalMs, err := opts.Int("<interval_ms>")
	if err != nil || intervalMs <= 0 {
		Err.Fatalf("Bad broadcast interval.")
	}

	settings := collab.DefaultServerSettings()
	settings.BroadcastInterval = time.Duration(intervalMs) * time.Millisecond
	if rolesPath, err := opts.String("--roles"); err == nil {
		settings.RolesPath = rolesPath
	}
	if snapshotPath, err := opts.String("--snapshot"); err == nil {
		settings.SnapshotPath = snapshotPath
	}
	if queueMax, err := opts.Int("--queue_max"); err == nil {
		settings.QueueMaxCount = queueMax
	}
	listenAddress, _ := opts.String("--listen")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := collab.NewServer(ctx, settings)
	defer server.Close()

	transport, err := collab.NewServerTransport(ctx, server, listenAddress)
	if err != nil {
		Err.Fatalf("Listen error = %s", err)
	}
	defer transport.Close()

	// the transport identifier, consumed by external tooling
	Out.Printf("%s\n", transport.Url())

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
			case "QUIT":
				if err := server.Shutdown(); err != nil {
					Out.Printf("QUIT rejected, %s\n", err)
				} else {
					return
				}
			case "DOC?":
				Out.Printf("DOC?\n%s\n", server.QueryDoc())
			case "LOG?":
				Out.Printf("LOG?\n%s", server.QueryLog())
			default:
				// operator injected edits run as the "server" user,
				// subject to the same role lookup as everyone else
				if command, err := collab.ParseCommand(line); err == nil && command.Kind.IsMutator() {
					server.Enqueue("server", line)
				} else {
					Out.Printf("Unknown command.\n")
				}
			}
		}
	}()

	<-server.Done()
}
