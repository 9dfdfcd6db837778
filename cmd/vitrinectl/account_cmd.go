package main

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vitrine/crypto"
	"vitrine/gateway/middleware"
)

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	addr := fs.String("addr", "", "bech32 address")
	if !parseFlags(fs, args, stderr) || !requireFlag(stderr, "addr", *addr) {
		return 1
	}
	return invoke(stdout, stderr, "ledger_getBalance", map[string]interface{}{"address": strings.TrimSpace(*addr)}, false)
}

func runPersonaCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, personaUsage())
		return 1
	}
	switch args[0] {
	case "show":
		fs := newFlagSet("persona show", stderr)
		addr := fs.String("addr", "", "bech32 address")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "addr", *addr) {
			return 1
		}
		params := map[string]interface{}{"address": strings.TrimSpace(*addr)}
		if code := invoke(stdout, stderr, "identity_getPersonaHash", params, false); code != 0 {
			return code
		}
		return invoke(stdout, stderr, "identity_getReputation", params, false)
	case "register":
		fs := newFlagSet("persona register", stderr)
		hash := fs.String("hash", "", "0x-prefixed persona hash")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "hash", *hash) {
			return 1
		}
		return invoke(stdout, stderr, "identity_registerPersona", map[string]interface{}{"hash": strings.TrimSpace(*hash)}, true)
	case "submit":
		fs := newFlagSet("persona submit", stderr)
		file := fs.String("file", "", "JSON persona submission")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "file", *file) {
			return 1
		}
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Error: read persona: %v\n", err)
			return 1
		}
		if !json.Valid(data) {
			fmt.Fprintln(stderr, "Error: persona file is not valid JSON")
			return 1
		}
		return invoke(stdout, stderr, "identity_submitPersona", map[string]interface{}{"persona": json.RawMessage(data)}, true)
	case "remove":
		if !parseFlags(newFlagSet("persona remove", stderr), args[1:], stderr) {
			return 1
		}
		return invoke(stdout, stderr, "identity_removePersona", nil, true)
	case "stats":
		return invoke(stdout, stderr, "identity_getStats", nil, false)
	default:
		fmt.Fprintf(stderr, "Unknown persona subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, personaUsage())
		return 1
	}
}

func runLinkCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, linkUsage())
		return 1
	}
	fs := newFlagSet("link "+args[0], stderr)
	id := fs.Uint64("id", 0, "product id")
	promoter := fs.String("promoter", "", "promoter address")
	if !parseFlags(fs, args[1:], stderr) {
		return 1
	}
	switch args[0] {
	case "register":
		if *id == 0 {
			fmt.Fprintln(stderr, "Error: --id is required")
			return 1
		}
		return invoke(stdout, stderr, "affiliate_registerLink", map[string]interface{}{"id": *id}, true)
	case "get", "track":
		if *id == 0 {
			fmt.Fprintln(stderr, "Error: --id is required")
			return 1
		}
		if !requireFlag(stderr, "promoter", *promoter) {
			return 1
		}
		params := map[string]interface{}{"productId": *id, "promoter": strings.TrimSpace(*promoter)}
		if args[0] == "get" {
			return invoke(stdout, stderr, "affiliate_getLink", params, false)
		}
		return invoke(stdout, stderr, "affiliate_trackReferral", params, true)
	case "list":
		if !requireFlag(stderr, "promoter", *promoter) {
			return 1
		}
		return invoke(stdout, stderr, "affiliate_listLinks", map[string]interface{}{"promoter": strings.TrimSpace(*promoter)}, false)
	default:
		fmt.Fprintf(stderr, "Unknown link subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, linkUsage())
		return 1
	}
}

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	switch args[0] {
	case "credit":
		fs := newFlagSet("admin credit", stderr)
		addr := fs.String("addr", "", "address to credit")
		amount := fs.String("amount", "", "amount to credit")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "addr", *addr) || !requireFlag(stderr, "amount", *amount) {
			return 1
		}
		return invoke(stdout, stderr, "admin_credit", map[string]interface{}{
			"address": strings.TrimSpace(*addr), "amount": strings.TrimSpace(*amount),
		}, true)
	case "reputation":
		fs := newFlagSet("admin reputation", stderr)
		addr := fs.String("addr", "", "address to adjust")
		delta := fs.Int64("delta", 0, "signed reputation delta")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "addr", *addr) {
			return 1
		}
		return invoke(stdout, stderr, "admin_updateReputation", map[string]interface{}{
			"address": strings.TrimSpace(*addr), "delta": *delta,
		}, true)
	case "pause", "resume":
		fs := newFlagSet("admin "+args[0], stderr)
		module := fs.String("module", "", "identity|catalog|market|affiliate|ledger")
		if !parseFlags(fs, args[1:], stderr) || !requireFlag(stderr, "module", *module) {
			return 1
		}
		return invoke(stdout, stderr, "admin_setPause", map[string]interface{}{
			"module": strings.TrimSpace(*module), "paused": args[0] == "pause",
		}, true)
	case "export":
		return runAdminExport(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
}

func runAdminExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("admin export", stderr)
	format := fs.String("format", "csv", "csv or jsonl")
	from := fs.Uint64("from", 0, "first sequence number")
	limit := fs.Int("limit", 0, "maximum receipts; 0 exports everything")
	out := fs.String("out", "", "write the decoded export to this file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	params := map[string]interface{}{"format": *format, "from": *from, "limit": *limit}
	if strings.TrimSpace(*out) == "" {
		return invoke(stdout, stderr, "admin_exportReceipts", params, true)
	}
	result, rpcErr, err := rpcCall("admin_exportReceipts", params, true)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		return 1
	}
	var export struct {
		Count      int    `json:"count"`
		Checksum   string `json:"checksum"`
		DataBase64 string `json:"dataBase64"`
	}
	if err := json.Unmarshal(result, &export); err != nil {
		fmt.Fprintf(stderr, "Error: decode export: %v\n", err)
		return 1
	}
	data, err := base64.StdEncoding.DecodeString(export.DataBase64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: decode export payload: %v\n", err)
		return 1
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != export.Checksum {
		fmt.Fprintln(stderr, "Error: export checksum mismatch")
		return 1
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error: write export: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %d receipts to %s (sha256 %s)\n", export.Count, *out, export.Checksum)
	return 0
}

// runTokenCommand issues a bearer token signed with the daemon's HMAC secret.
func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	secretEnv := fs.String("secret-env", "VITRINE_JWT_SECRET", "environment variable holding the HMAC secret")
	subject := fs.String("subject", "", "caller address")
	scopes := fs.String("scopes", "", "space separated scopes")
	issuer := fs.String("issuer", "vitrine", "token issuer")
	audience := fs.String("audience", "vitrine-rpc", "token audience")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) || !requireFlag(stderr, "subject", *subject) {
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		fmt.Fprintf(stderr, "Error: %s is empty\n", *secretEnv)
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(*subject))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid subject: %v\n", err)
		return 1
	}
	token, err := middleware.IssueToken([]byte(secret), *issuer, *audience, addr, strings.Fields(*scopes), *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: issue token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runGenerateKeyCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	out := fs.String("out", "", "write the hex private key to this file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if strings.TrimSpace(*out) != "" {
		if err := os.WriteFile(*out, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
			fmt.Fprintf(stderr, "Error: write key: %v\n", err)
			return 1
		}
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func personaUsage() string {
	return strings.TrimSpace(`Usage:
  vitrinectl persona <command> [flags]

Commands:
  show      Show persona binding and reputation of an address
  register  Bind a precomputed persona hash to the token subject
  submit    Process a JSON submission and bind the resulting hash
  remove    Clear the token subject's persona binding
  stats     Show registry counters
`)
}

func linkUsage() string {
	return strings.TrimSpace(`Usage:
  vitrinectl link <command> [flags]

Commands:
  register  Register an affiliate link for a product
  get       Show a promoter's link for a product
  list      List a promoter's links
  track     Record a referral session for the token subject
`)
}

func adminUsage() string {
	return strings.TrimSpace(`Usage:
  vitrinectl admin <command> [flags]

Commands:
  credit      Credit a balance
  reputation  Apply a reputation delta
  pause       Pause a module
  resume      Resume a module
  export      Export receipts as CSV or JSONL
`)
}
