package main

// for this sim, a fleet of editor clients storms one server with random
// edit commands, and every client must observe the identical delta stream

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/bringyour/collab/collab"
)

func main() {
	editStormSim := &EditStormSim{
		clientCount:       8,
		writerCount:       6,
		commandInterval:   20 * time.Millisecond,
		sendDuration:      5 * time.Second,
		broadcastInterval: 100 * time.Millisecond,
	}

	if err := editStormSim.Run(); err != nil {
		panic(err)
	}
}

type EditStormSim struct {
	clientCount       int
	writerCount       int
	commandInterval   time.Duration
	sendDuration      time.Duration
	broadcastInterval time.Duration
}

func (self *EditStormSim) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := os.MkdirTemp("", "collab-sim")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	rolesPath := filepath.Join(dir, "roles.txt")
	var roles strings.Builder
	for i := 0; i < self.clientCount; i += 1 {
		role := collab.RoleRead
		if i < self.writerCount {
			role = collab.RoleWrite
		}
		fmt.Fprintf(&roles, "user%d %s\n", i, role)
	}
	if err := os.WriteFile(rolesPath, []byte(roles.String()), 0644); err != nil {
		return err
	}

	settings := collab.DefaultServerSettings()
	settings.BroadcastInterval = self.broadcastInterval
	settings.RolesPath = rolesPath
	settings.SnapshotPath = filepath.Join(dir, "doc.md")

	server := collab.NewServer(ctx, settings)
	defer server.Close()

	transport, err := collab.NewServerTransport(ctx, server, "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer transport.Close()

	deltaStreams := make([][]string, self.clientCount)
	clients := []*collab.Client{}
	for i := 0; i < self.clientCount; i += 1 {
		client, err := collab.DialWithDefaults(ctx, transport.Url(), fmt.Sprintf("user%d", i))
		if err != nil {
			return err
		}
		defer client.Close()
		clients = append(clients, client)
	}

	var receiveWaitGroup sync.WaitGroup
	for i, client := range clients {
		receiveWaitGroup.Add(1)
		go func(i int, client *collab.Client) {
			defer receiveWaitGroup.Done()
			for message := range client.Receive() {
				if strings.HasPrefix(message, "VERSION ") {
					deltaStreams[i] = append(deltaStreams[i], message)
				}
			}
		}(i, client)
	}

	var sendWaitGroup sync.WaitGroup
	for i := 0; i < self.writerCount; i += 1 {
		sendWaitGroup.Add(1)
		go func(client *collab.Client) {
			defer sendWaitGroup.Done()
			random := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
			endTime := time.Now().Add(self.sendDuration)
			for time.Now().Before(endTime) {
				client.Send(randomCommand(random))
				select {
				case <-ctx.Done():
					return
				case <-time.After(self.commandInterval):
				}
			}
		}(clients[i])
	}
	sendWaitGroup.Wait()

	// let the last tick broadcast flush out
	time.Sleep(5 * self.broadcastInterval)

	for _, client := range clients {
		client.Send("DISCONNECT")
	}
	receiveWaitGroup.Wait()

	// every client must have seen byte-identical deltas per version
	versionDeltas := map[string]int{}
	reference := strings.Join(deltaStreams[0], "")
	for i, stream := range deltaStreams {
		joined := strings.Join(stream, "")
		versionDeltas[joined] += 1
		if joined != reference {
			return fmt.Errorf("client %d diverged after %d deltas", i, len(stream))
		}
	}
	if len(maps.Keys(versionDeltas)) != 1 {
		return fmt.Errorf("clients diverged: %d distinct streams", len(versionDeltas))
	}

	fmt.Printf("%d clients converged over %d deltas, final version %d\n",
		self.clientCount, len(deltaStreams[0]), server.Version())
	fmt.Printf("final document %d bytes\n", len(server.QueryDoc()))
	return nil
}

// randomCommand emits a plausible mix of the command grammar. Positions
// are random, rejections are part of the storm.
func randomCommand(random *mathrand.Rand) string {
	pos := random.Intn(256)
	switch random.Intn(10) {
	case 0:
		return fmt.Sprintf("DEL %d %d", pos, 1+random.Intn(8))
	case 1:
		return fmt.Sprintf("NEWLINE %d", pos)
	case 2:
		return fmt.Sprintf("HEADING %d %d", 1+random.Intn(3), pos)
	case 3:
		return fmt.Sprintf("BOLD %d %d", pos, pos+1+random.Intn(8))
	case 4:
		return fmt.Sprintf("ITALIC %d %d", pos, pos+1+random.Intn(8))
	case 5:
		return fmt.Sprintf("BLOCKQUOTE %d", pos)
	case 6:
		return fmt.Sprintf("ORDERED_LIST %d", pos)
	case 7:
		return fmt.Sprintf("UNORDERED_LIST %d", pos)
	case 8:
		return fmt.Sprintf("LINK %d %d https://example.com", pos, pos+1+random.Intn(8))
	default:
		return fmt.Sprintf("INSERT %d edit%d", pos, random.Intn(1000))
	}
}
