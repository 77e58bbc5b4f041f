package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/bringyour/collab/collab"
)

const CollabCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Collaborative markdown client.

Connects to a collabd server, authenticates by name, prints the
bootstrap document, then forwards command lines from stdin and prints
every broadcast delta and query response.

Usage:
    collabctl connect --url=<url> --user=<name>
    collabctl -h | --help
    collabctl --version

Options:
    --url=<url>    Server websocket url.
    --user=<name>  User name listed in the server role file.
    -h --help      Show this screen.
    --version      Show version.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CollabCtlVersion)
	if err != nil {
		panic(err)
	}

	if connect_, _ := opts.Bool("connect"); connect_ {
		connect(opts)
	}
}

func connect(opts docopt.Opts) {
	url, _ := opts.String("--url")
	user, _ := opts.String("--user")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := collab.DialWithDefaults(ctx, url, user)
	if err != nil {
		Err.Fatalf("Connect error = %s", err)
	}
	defer client.Close()

	Out.Printf("%s %s v%d\n", client.User(), client.Role(), client.Version())
	Out.Printf("%s\n", client.InitialDocument())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for message := range client.Receive() {
			Out.Printf("%s", message)
		}
	}()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			// stdin closed, tell the server we are leaving
			client.Send("DISCONNECT")
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := client.Send(line); err != nil {
			Err.Printf("Send error = %s", err)
			break
		}
		if line == "DISCONNECT" {
			break
		}
	}
	<-done
}
