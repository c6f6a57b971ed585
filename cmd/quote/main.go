package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shippingquote/internal/app"
	"shippingquote/internal/config"
	"shippingquote/internal/logger"
	"shippingquote/internal/pricing"
	"shippingquote/internal/quote"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	postalCode := fs.String("postal-code", getenv("POSTAL_CODE", ""), "destination postal code (CEP)")
	weight := fs.Float64("weight", getenvFloat("WEIGHT_GRAMS", 0), "package weight in grams")
	orderTotal := fs.String("order-total", getenv("ORDER_TOTAL", ""), "order total; enables the free shipping rule")
	configPath := fs.String("config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	timeout := fs.Duration("timeout", 15*time.Second, "overall timeout")
	verbose := fs.Bool("v", false, "log provider activity to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var total *decimal.Decimal
	if s := strings.TrimSpace(*orderTotal); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("order-total: %w", err)
		}
		total = &d
	}

	lg := zap.NewNop()
	if *verbose {
		lg = logger.New(logger.Config{Level: "debug", Format: "console", Output: "stderr"})
		defer func() { _ = lg.Sync() }()
	}

	a, err := app.Build(cfg, lg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	res, err := a.Service.GetQuote(ctx, quote.Request{PostalCode: *postalCode, WeightGrams: *weight})
	if err != nil {
		return err
	}
	if total != nil {
		res.Options = a.FreeShipping.Apply(res.Options, *total)
		pricing.SortByPrice(res.Options)
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return x
		}
	}
	return def
}
