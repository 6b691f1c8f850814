package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"mogeeb/infra/registry"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "relay base URL")
	path := flag.String("path", "/api/chat", "chat adapter path")
	consulAddr := flag.String("consul", "", "consul address used to discover the relay instead of -url")
	service := flag.String("service", "mogeeb-relay", "relay service name in consul")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *consulAddr != "" {
		url, err := discover(*consulAddr, *service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discovery failed: %v\n", err)
			os.Exit(1)
		}
		*baseURL = url
	}

	client := NewChatClient(strings.TrimRight(*baseURL, "/"), *path)
	fmt.Printf("Welcome to Mogeeb CLI (%s%s)\n", *baseURL, *path)
	fmt.Println("Type a message, /listen to fetch queued replies, /quit to exit.")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/listen":
			reply, err := client.Listen(ctx)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if !reply.HasMessage {
				fmt.Println("(no new messages)")
				continue
			}
			fmt.Printf("Mogeeb: %s\n", reply.Message)
		default:
			fmt.Println("...")
			fmt.Printf("Mogeeb: %s\n", client.Send(ctx, line))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func discover(addr, service string) (string, error) {
	reg, err := registry.NewConsulRegistry(&registry.ConsulConfig{Address: addr, Scheme: "http"})
	if err != nil {
		return "", err
	}
	instances, err := reg.DiscoverService(service)
	if err != nil {
		return "", err
	}
	if len(instances) == 0 {
		return "", fmt.Errorf("no healthy %s instance", service)
	}
	return instances[0].URL(), nil
}
