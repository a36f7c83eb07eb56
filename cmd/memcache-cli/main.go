package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	memcache "github.com/pior/memcache-async"
	"github.com/pior/memcache-async/reactor"
	"github.com/pior/memcache-async/text"
)

const usage = `Commands:
  get <key> [key...]               - Get values (gets for cas tokens)
  set <key> <value> [ttl]          - Store a value (also add, replace)
  append <key> <value>             - Append to a value (also prepend)
  cas <key> <value> <cas> [ttl]    - Store if unchanged since gets
  delete <key>                     - Delete a key
  incr <key> <delta>               - Increment a counter (also decr)
  touch <key> <ttl>                - Update the TTL of a key
  stats [args]                     - Show server statistics
  clientstats                      - Show client statistics
  version                          - Show the server version
  flush_all [delay]                - Invalidate every item
  quit                             - Exit the CLI
Anything else is sent to the server as is.`

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		addr       = flag.String("addr", "", "Memcached server address (overrides the config file)")
		timeout    = flag.Duration("timeout", 5*time.Second, "Timeout of a single command")
		verbose    = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *verbose {
		cfg.LogLevel = zap.DebugLevel
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := reactor.New()
	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("loop stopped", zap.Error(err))
		}
	}()

	client := memcache.NewClient(cfg.Addr, loop, cfg.clientConfig(logger.Named("memcache")))
	defer client.Close()

	fmt.Println("Memcache CLI Tool")
	fmt.Println("================")
	fmt.Printf("Server: %s\n", cfg.Addr)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		switch command {
		case "help":
			fmt.Println(usage)
			continue
		case "quit", "exit":
			fmt.Println("Goodbye!")
			return
		case "clientstats":
			printClientStats(client)
			continue
		}

		res, err := issue(client, command, parts[1:])
		if err != nil {
			fmt.Println(err)
			continue
		}

		start := time.Now()
		cmdCtx, cmdCancel := context.WithTimeout(ctx, *timeout)
		reply, err := res.Wait(cmdCtx)
		cmdCancel()
		duration := time.Since(start)

		if err != nil {
			fmt.Printf("Error: %v (took %v)\n", err, duration)
			continue
		}
		printReply(reply)
		fmt.Printf("(took %v)\n", duration)
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

// issue maps a REPL line to a client command.
func issue(client *memcache.Client, command string, args []string) (*memcache.Result, error) {
	switch command {
	case "get", "gets":
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: %s <key> [key...]", command)
		}
		if command == "gets" {
			return client.Gets(args...), nil
		}
		return client.Get(args...), nil

	case "set", "add", "replace":
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("usage: %s <key> <value> [ttl_seconds]", command)
		}
		ttl, err := optionalSeconds(args, 2)
		if err != nil {
			return nil, err
		}
		switch command {
		case "add":
			return client.Add(args[0], args[1], ttl, false), nil
		case "replace":
			return client.Replace(args[0], args[1], ttl, false), nil
		default:
			return client.Set(args[0], args[1], ttl, false), nil
		}

	case "append", "prepend":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: %s <key> <value>", command)
		}
		if command == "prepend" {
			return client.Prepend(args[0], args[1], false), nil
		}
		return client.Append(args[0], args[1], false), nil

	case "cas":
		if len(args) < 3 || len(args) > 4 {
			return nil, fmt.Errorf("usage: cas <key> <value> <cas> [ttl_seconds]")
		}
		casUnique, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cas: %v", err)
		}
		ttl, err := optionalSeconds(args, 3)
		if err != nil {
			return nil, err
		}
		return client.Cas(args[0], args[1], ttl, casUnique, false), nil

	case "delete", "del":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: delete <key>")
		}
		return client.Delete(args[0], false), nil

	case "incr", "decr":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: %s <key> <delta>", command)
		}
		delta, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid delta: %v", err)
		}
		if command == "decr" {
			return client.Decr(args[0], delta, false), nil
		}
		return client.Incr(args[0], delta, false), nil

	case "touch":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: touch <key> <ttl_seconds>")
		}
		ttl, err := optionalSeconds(args, 1)
		if err != nil {
			return nil, err
		}
		return client.Touch(args[0], ttl, false), nil

	case "stats":
		return client.ServerStats(args...), nil

	case "version":
		return client.Version(), nil

	case "flush_all":
		delay, err := optionalSeconds(args, 0)
		if err != nil {
			return nil, err
		}
		return client.FlushAll(delay, false), nil

	default:
		passThrough := make([]any, len(args))
		for i, arg := range args {
			passThrough[i] = arg
		}
		return client.Do(command, passThrough...), nil
	}
}

func optionalSeconds(args []string, i int) (time.Duration, error) {
	if len(args) <= i {
		return 0, nil
	}
	secs, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid TTL: %v", err)
	}
	return time.Duration(secs) * time.Second, nil
}

func printReply(reply text.Reply) {
	switch reply.Kind {
	case text.ReplyNone:
		fmt.Println("Key not found")
	case text.ReplyLine:
		fmt.Println(reply.Line)
	case text.ReplyValue:
		printItem(*reply.Item)
	case text.ReplyValues:
		keys := make([]string, 0, len(reply.Items))
		for key := range reply.Items {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			printItem(reply.Items[key])
		}
		fmt.Printf("Retrieved %d key(s)\n", len(keys))
	case text.ReplyLines:
		for _, line := range reply.Lines {
			fmt.Println(line)
		}
	}
}

func printItem(item text.Item) {
	fmt.Printf("%s: %v (flags %d", item.Key, item.Value, item.Flags)
	if item.CAS != 0 {
		fmt.Printf(", cas %d", item.CAS)
	}
	fmt.Println(")")
}

func printClientStats(client *memcache.Client) {
	stats := client.Stats()
	fmt.Printf("Client Statistics (%s):\n", client.Addr())
	fmt.Printf("  Requests: %d\n", stats.Requests)
	fmt.Printf("  NoReply: %d\n", stats.NoReply)
	fmt.Printf("  Replies: %d\n", stats.Replies)
	fmt.Printf("  Errors: %d\n", stats.Errors)
	fmt.Printf("  Connects: %d\n", stats.Connects)
	fmt.Printf("  Connect Failures: %d\n", stats.ConnectFailures)
	fmt.Printf("  Unsolicited Bytes: %d\n", stats.UnsolicitedBytes)
	fmt.Printf("  Circuit Breaker: %s\n", client.CircuitBreakerState())
}
