package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "product":
		return runProductCommand(rest, stdout, stderr)
	case "buy":
		return runBuyCommand(rest, stdout, stderr)
	case "receipts":
		return runReceiptsCommand(rest, stdout, stderr)
	case "stats":
		return invoke(stdout, stderr, "market_getStats", nil, false)
	case "balance":
		return runBalanceCommand(rest, stdout, stderr)
	case "withdraw":
		return invoke(stdout, stderr, "ledger_withdraw", nil, true)
	case "persona":
		return runPersonaCommand(rest, stdout, stderr)
	case "link":
		return runLinkCommand(rest, stdout, stderr)
	case "admin":
		return runAdminCommand(rest, stdout, stderr)
	case "token":
		return runTokenCommand(rest, stdout, stderr)
	case "generate-key":
		return runGenerateKeyCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  vitrinectl [--rpc URL] [--token TOKEN] <command> [flags]

Commands:
  product       Browse, list and update products
  buy           Purchase a product as the token subject
  receipts      Show purchase receipts
  stats         Show marketplace totals
  balance       Show a withdrawable balance
  withdraw      Withdraw the token subject's balance
  persona       Manage persona bindings
  link          Manage affiliate links and referrals
  admin         Operator commands (admin scope required)
  token         Issue a bearer token from the shared HMAC secret
  generate-key  Generate a key pair and print its address

Environment:
  VITRINE_RPC_URL    RPC endpoint (default http://localhost:8080/rpc)
  VITRINE_RPC_TOKEN  bearer token for authenticated commands
`)
}
