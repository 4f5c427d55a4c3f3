package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/luminus"
	"github.com/raterudder/luminus/pkg/storage"
)

func main() {
	command := lflag.String("command", "meters", "What to print (available: meters, pricing, history)")
	ean := lflag.String("ean", "", "EAN of the meter for pricing and history")
	query := lflag.String("jq", ".", "jq filter applied to the output")
	since := lflag.Duration("since", 7*24*time.Hour, "How far back history goes")

	c := luminus.Configured()
	s := storage.Configured()
	lflag.Configure()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, err := compileQuery(*query)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid jq filter", slog.Any("error", err))
		os.Exit(2)
	}

	v, err := run(ctx, c, s, *command, *ean, *since)

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if lerr := c.Logout(logoutCtx); lerr != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to log out", slog.Any("error", lerr))
	}
	logoutCancel()
	if cerr := s.Close(); cerr != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to close storage", slog.Any("error", cerr))
	}

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "command failed", slog.String("command", *command), slog.Any("error", err))
		os.Exit(1)
	}
	if err := printQuery(ctx, code, v, os.Stdout); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to print output", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, c *luminus.Client, s storage.Database, command, ean string, since time.Duration) (any, error) {
	switch command {
	case "meters":
		return c.ListMeters(ctx)
	case "pricing":
		if ean == "" {
			return nil, errors.New("pricing needs -ean")
		}
		return c.GetMeterPricing(ctx, ean)
	case "history":
		if ean == "" {
			return nil, errors.New("history needs -ean")
		}
		if storage.Ephemeral(s) {
			log.Ctx(ctx).WarnContext(ctx, "reading history from the memory storage provider, it is always empty in a new process; use -storage-provider firestore")
		}
		now := time.Now()
		return s.GetPriceHistory(ctx, ean, now.Add(-since), now)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func compileQuery(query string) (*gojq.Code, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(q)
}

// printQuery runs code against v and writes every result as indented JSON.
func printQuery(ctx context.Context, code *gojq.Code, v any, w io.Writer) error {
	// gojq only understands plain JSON values
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(b, &input); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	iter := code.RunWithContext(ctx, input)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := out.(error); ok {
			var haltErr *gojq.HaltError
			if errors.As(err, &haltErr) && haltErr.Value() == nil {
				return nil
			}
			return err
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
}
