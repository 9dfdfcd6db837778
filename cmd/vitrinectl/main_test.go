package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stubRPC(t *testing.T, fn func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error)) {
	t.Helper()
	original := rpcCall
	rpcCall = fn
	t.Cleanup(func() { rpcCall = original })
}

func TestCommandArgValidation(t *testing.T) {
	stubRPC(t, func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		t.Fatalf("unexpected RPC call for method %s", method)
		return nil, nil, nil
	})
	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no_command", args: nil, wantErr: "Usage:"},
		{name: "unknown", args: []string{"mint"}, wantErr: "Unknown command: mint"},
		{name: "buy_missing_payment", args: []string{"buy", "--id", "1"}, wantErr: "--payment is required"},
		{name: "buy_missing_id", args: []string{"buy", "--payment", "10"}, wantErr: "--id is required"},
		{name: "product_bps", args: []string{"product", "create", "--price", "5", "--commission-bps", "20000"}, wantErr: "at most 10000"},
		{name: "balance_missing_addr", args: []string{"balance"}, wantErr: "--addr is required"},
		{name: "link_unknown", args: []string{"link", "delete"}, wantErr: "Unknown link subcommand"},
		{name: "admin_credit_amount", args: []string{"admin", "credit", "--addr", "vtr1x"}, wantErr: "--amount is required"},
		{name: "persona_positional", args: []string{"persona", "register", "--hash", "0x01", "extra"}, wantErr: "unexpected positional"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}
			if exit := run(tc.args, stdout, stderr); exit != 1 {
				t.Fatalf("unexpected exit code %d", exit)
			}
			if stdout.Len() != 0 {
				t.Fatalf("expected empty stdout, got %q", stdout.String())
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Fatalf("stderr %q does not mention %q", stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestBuyCommandSendsParams(t *testing.T) {
	var (
		gotMethod string
		gotParams map[string]interface{}
		gotAuth   bool
	)
	stubRPC(t, func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		gotMethod = method
		gotParams = params.(map[string]interface{})
		gotAuth = requireAuth
		return json.RawMessage(`{"sequence":1}`), nil, nil
	})
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	exit := run([]string{"buy", "--id", "3", "--payment", "150", "--referral", "vtr1promoter"}, stdout, stderr)
	if exit != 0 {
		t.Fatalf("unexpected exit %d: %s", exit, stderr.String())
	}
	if gotMethod != "market_purchase" || !gotAuth {
		t.Fatalf("unexpected call %s auth=%v", gotMethod, gotAuth)
	}
	if gotParams["productId"] != uint64(3) || gotParams["payment"] != "150" || gotParams["referral"] != "vtr1promoter" {
		t.Fatalf("unexpected params %+v", gotParams)
	}
	if !strings.Contains(stdout.String(), `"sequence": 1`) {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestRPCErrorsExitNonZero(t *testing.T) {
	stubRPC(t, func(string, interface{}, bool) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32030, Message: "market: sellers cannot buy their own listings"}, nil
	})
	stderr := &bytes.Buffer{}
	if exit := run([]string{"buy", "--id", "1", "--payment", "1"}, &bytes.Buffer{}, stderr); exit != 1 {
		t.Fatalf("expected failure exit, got %d", exit)
	}
	if !strings.Contains(stderr.String(), "RPC error -32030") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestAdminExportVerifiesChecksum(t *testing.T) {
	payload := []byte("sequence,product_id\n1,1\n")
	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])
	stubRPC(t, func(method string, _ interface{}, _ bool) (json.RawMessage, *rpcError, error) {
		result, _ := json.Marshal(map[string]interface{}{
			"count":      1,
			"checksum":   checksum,
			"dataBase64": base64.StdEncoding.EncodeToString(payload),
		})
		return result, nil, nil
	})
	out := filepath.Join(t.TempDir(), "receipts.csv")
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if exit := run([]string{"admin", "export", "--out", out}, stdout, stderr); exit != 0 {
		t.Fatalf("unexpected exit: %s", stderr.String())
	}
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !bytes.Equal(written, payload) {
		t.Fatalf("unexpected export %q", written)
	}

	checksum = strings.Repeat("0", 64)
	stderr.Reset()
	if exit := run([]string{"admin", "export", "--out", out}, &bytes.Buffer{}, stderr); exit != 1 {
		t.Fatalf("expected checksum failure")
	}
	if !strings.Contains(stderr.String(), "checksum mismatch") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	originalEndpoint, originalToken := rpcEndpoint, rpcAuthToken
	defer func() { rpcEndpoint, rpcAuthToken = originalEndpoint, originalToken }()

	args, err := applyGlobalFlags([]string{"--rpc", "http://node:9/rpc", "stats", "--token=abc"})
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if len(args) != 1 || args[0] != "stats" {
		t.Fatalf("unexpected args %v", args)
	}
	if rpcEndpoint != "http://node:9/rpc" || rpcAuthToken != "abc" {
		t.Fatalf("unexpected globals %s %s", rpcEndpoint, rpcAuthToken)
	}
	if _, err := applyGlobalFlags([]string{"--rpc"}); err == nil {
		t.Fatalf("expected error for missing value")
	}
}
