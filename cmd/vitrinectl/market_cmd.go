package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func requireFlag(stderr io.Writer, name, value string) bool {
	if strings.TrimSpace(value) == "" {
		fmt.Fprintf(stderr, "Error: --%s is required\n", name)
		return false
	}
	return true
}

func runProductCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, productUsage())
		return 1
	}
	switch args[0] {
	case "get", "metadata":
		fs := newFlagSet("product "+args[0], stderr)
		id := fs.Uint64("id", 0, "product id")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		if *id == 0 {
			fmt.Fprintln(stderr, "Error: --id is required")
			return 1
		}
		method := "market_getProduct"
		if args[0] == "metadata" {
			method = "market_getMetadata"
		}
		return invoke(stdout, stderr, method, map[string]interface{}{"id": *id}, false)
	case "list":
		fs := newFlagSet("product list", stderr)
		seller := fs.String("seller", "", "only list this seller's products")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		if strings.TrimSpace(*seller) != "" {
			return invoke(stdout, stderr, "market_listSellerProducts", map[string]interface{}{"seller": strings.TrimSpace(*seller)}, false)
		}
		return invoke(stdout, stderr, "market_listActiveProducts", nil, false)
	case "create":
		fs := newFlagSet("product create", stderr)
		price := fs.String("price", "", "listing price")
		bps := fs.Uint("commission-bps", 0, "promoter commission in basis points")
		ref := fs.String("metadata-ref", "", "existing content id for the product metadata")
		file := fs.String("metadata-file", "", "file whose contents are stored as product metadata")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "price", *price) {
			return 1
		}
		if *bps > 10000 {
			fmt.Fprintln(stderr, "Error: --commission-bps must be at most 10000")
			return 1
		}
		params := map[string]interface{}{"price": strings.TrimSpace(*price), "commissionBps": *bps}
		if strings.TrimSpace(*ref) != "" {
			params["metadataRef"] = strings.TrimSpace(*ref)
		}
		if strings.TrimSpace(*file) != "" {
			data, err := os.ReadFile(*file)
			if err != nil {
				fmt.Fprintf(stderr, "Error: read metadata: %v\n", err)
				return 1
			}
			params["metadata"] = string(data)
		}
		return invoke(stdout, stderr, "market_listProduct", params, true)
	case "update":
		fs := newFlagSet("product update", stderr)
		id := fs.Uint64("id", 0, "product id")
		price := fs.String("price", "", "new price")
		active := fs.Bool("active", true, "whether the listing stays active")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "price", *price) {
			return 1
		}
		if *id == 0 {
			fmt.Fprintln(stderr, "Error: --id is required")
			return 1
		}
		return invoke(stdout, stderr, "market_updateProduct", map[string]interface{}{
			"id": *id, "price": strings.TrimSpace(*price), "active": *active,
		}, true)
	default:
		fmt.Fprintf(stderr, "Unknown product subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, productUsage())
		return 1
	}
}

func runBuyCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("buy", stderr)
	id := fs.Uint64("id", 0, "product id")
	payment := fs.String("payment", "", "amount paid; anything above the price is refunded")
	referral := fs.String("referral", "", "promoter address that referred the purchase")
	if !parseFlags(fs, args, stderr) || !requireFlag(stderr, "payment", *payment) {
		return 1
	}
	if *id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	params := map[string]interface{}{"productId": *id, "payment": strings.TrimSpace(*payment)}
	if strings.TrimSpace(*referral) != "" {
		params["referral"] = strings.TrimSpace(*referral)
	}
	return invoke(stdout, stderr, "market_purchase", params, true)
}

func runReceiptsCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("receipts", stderr)
	from := fs.Uint64("from", 0, "first sequence number")
	limit := fs.Int("limit", 100, "maximum receipts returned")
	sequence := fs.Uint64("sequence", 0, "fetch a single receipt")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if *sequence > 0 {
		return invoke(stdout, stderr, "market_getReceipt", map[string]interface{}{"sequence": *sequence}, false)
	}
	return invoke(stdout, stderr, "market_getReceipts", map[string]interface{}{"from": *from, "limit": *limit}, false)
}

func productUsage() string {
	return strings.TrimSpace(`Usage:
  vitrinectl product <command> [flags]

Commands:
  get       Show a product by id
  metadata  Fetch a product's stored metadata
  list      List active products, or a seller's products with --seller
  create    List a new product as the token subject
  update    Change price or active flag of your product
`)
}
