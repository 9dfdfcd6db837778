package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	rpcURLEnv   = "VITRINE_RPC_URL"
	rpcTokenEnv = "VITRINE_RPC_TOKEN"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv(rpcTokenEnv)
	rpcClient    = &http.Client{Timeout: 30 * time.Second}
)

// rpcCall is swapped out by tests.
var rpcCall = callRPC

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://localhost:8080/rpc"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				rpcEndpoint = args[i+1]
			} else {
				rpcAuthToken = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--token="):
			rpcAuthToken = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, nil, fmt.Errorf("unexpected response (%s): %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(rpcAuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if requireAuth {
		return nil, fmt.Errorf("this command requires %s or --token", rpcTokenEnv)
	}
	resp, err := rpcClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

// invoke runs a call and prints the result; the return value is the exit code.
func invoke(stdout, stderr io.Writer, method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		return 1
	}
	writeRPCResult(stdout, result)
	return 0
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, _ = w.Write(result)
		fmt.Fprintln(w)
		return
	}
	pretty.WriteByte('\n')
	_, _ = w.Write(pretty.Bytes())
}
