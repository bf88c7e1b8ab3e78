package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
	grpcclient "github.com/therealutkarshpriyadarshi/vocabtree/pkg/api/grpc"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

var serverAddr string

func remoteFlags(fs *flag.FlagSet) {
	fs.StringVar(&serverAddr, "server", "localhost:50051", "gRPC server address")
	commonFlags(fs)
}

func handleScore(args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	var (
		file = fs.String("file", "", "query descriptor file (required)")
		top  = fs.Int("top", api.DefaultTop, "number of ranked images")
	)
	remoteFlags(fs)
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	m, err := descriptor.LoadDescriptors(*file)
	if err != nil {
		return err
	}
	req, err := api.NewScoreRequest(m, *top)
	if err != nil {
		return err
	}

	client, err := grpcclient.Dial(serverAddr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", serverAddr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.Score(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d results among %d images (cached: %v)\n\n", len(resp.Scores), resp.Images, resp.Cached)
	for i, s := range resp.Scores {
		fmt.Printf("%d. Image: %d\n", i+1, s.ImageID)
		fmt.Printf("   Distance: %.6f\n\n", s.Distance)
	}
	return nil
}

func handleStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	remoteFlags(fs)
	fs.Parse(args)

	client, err := grpcclient.Dial(serverAddr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", serverAddr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func handleHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	remoteFlags(fs)
	fs.Parse(args)

	client, err := grpcclient.Dial(serverAddr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", serverAddr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Version: %s\n", resp.Version)
	fmt.Printf("Uptime: %.0fs\n", resp.UptimeSeconds)
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
