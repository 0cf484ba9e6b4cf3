// Command canvas-fetch streams the items of a paginated Canvas endpoint
// to stdout as newline-delimited JSON. Diagnostics go to stderr; set
// CANVAS_DEBUG=1 for dispatcher timing output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coursekit/canvas-client/pkg/canvas"
	"github.com/coursekit/canvas-client/pkg/logging"
	"github.com/coursekit/canvas-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
)

// multiFlag collects repeated -param flags.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	var params multiFlag
	endpoint := flag.String("endpoint", "", "Canvas endpoint to page through, e.g. courses")
	limit := flag.Int("limit", 0, "stop after this many items (0 = all)")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	flag.Var(&params, "param", "query parameter as key=value or key[]=v1,v2 (repeatable)")
	flag.Parse()

	logger := logging.Setup(logging.FromEnv())

	if *endpoint == "" {
		fmt.Fprintln(os.Stderr, "usage: canvas-fetch -endpoint courses [-param key=value] [-limit n]")
		os.Exit(2)
	}

	if err := run(*endpoint, params, *limit, *timeout); err != nil {
		logger.Error().Err(err).Msg("canvas-fetch failed")
		os.Exit(1)
	}
}

func run(endpoint string, rawParams []string, limit int, timeout time.Duration) error {
	baseURL := os.Getenv("CANVAS_BASE_URL")
	token := os.Getenv("CANVAS_TOKEN")
	if baseURL == "" || token == "" {
		return fmt.Errorf("CANVAS_BASE_URL and CANVAS_TOKEN must be set")
	}

	cfg := canvas.DefaultConfig(baseURL, token)
	cfg.Timeout = timeout

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to Redis at %s: %w", redisURL, err)
		}
		defer redisClient.Close()
		cfg.Redis = redisClient
	}

	client, err := canvas.New(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}

	items := pagination.NewPager(client).Items(endpoint, params)

	ctx := context.Background()
	count := 0
	for {
		item, ok, err := items.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fmt.Println(string(item))
		count++
		if limit > 0 && count >= limit {
			return nil
		}
	}
}

// parseParams turns key=value pairs into canvas.Params. A key ending in
// [] with a comma-separated value becomes an array parameter.
func parseParams(raw []string) (canvas.Params, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	params := canvas.Params{}
	for _, pair := range raw {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid -param %q, want key=value", pair)
		}
		if strings.HasSuffix(key, "[]") {
			params[strings.TrimSuffix(key, "[]")] = strings.Split(value, ",")
			continue
		}
		params[key] = value
	}
	return params, nil
}
