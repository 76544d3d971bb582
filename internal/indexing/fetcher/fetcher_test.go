package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type fakeRPC struct {
	responses map[string]json.RawMessage
	errs      map[string]error
	calls     int
}

func (f *fakeRPC) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	f.calls++
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	return f.responses[method], nil
}

type fakeLimiter struct{}

func (fakeLimiter) Acquire(ctx context.Context) error { return nil }

func blockJSON(number, timestamp string, txs string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"number": %q,
		"hash": "0xblockhash",
		"parentHash": "0xparent",
		"timestamp": %q,
		"gasUsed": "0x5208",
		"gasLimit": "0x1c9c380",
		"baseFeePerGas": "0x3b9aca00",
		"transactions": %s
	}`, number, timestamp, txs))
}

func TestFetcher_Fetch_Success(t *testing.T) {
	txs := `[{
		"hash": "0xabc",
		"transactionIndex": "0x0",
		"from": "0xfrom",
		"to": "0xto",
		"value": "0xde0b6b3a7640000",
		"gasPrice": "0x3b9aca00",
		"nonce": "0x1"
	}]`
	receipts := `[{
		"transactionHash": "0xabc",
		"gasUsed": "0x5208",
		"status": "0x1",
		"contractAddress": "",
		"logs": [{
			"address": "0xcontract",
			"topics": ["0xtopic0", "0xtopic1"],
			"data": "0xdata",
			"logIndex": "0x0"
		}]
	}]`

	rpc := &fakeRPC{responses: map[string]json.RawMessage{
		"eth_getBlockByNumber": blockJSON("0x64", "0x5f5e100", txs),
		"eth_getBlockReceipts": json.RawMessage(receipts),
	}}

	f := New(rpc, fakeLimiter{}, 3)
	result, err := f.Fetch(context.Background(), 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if result.Block.Number != 100 {
		t.Errorf("block number = %d, want 100", result.Block.Number)
	}
	if result.Block.GasUsed != "21000" {
		t.Errorf("gas used = %q, want 21000", result.Block.GasUsed)
	}
	if len(result.Txs) != 1 || result.Txs[0].Hash != "0xabc" {
		t.Fatalf("unexpected txs: %+v", result.Txs)
	}
	if result.Txs[0].Value != "1000000000000000000" {
		t.Errorf("tx value = %q, want 1000000000000000000", result.Txs[0].Value)
	}
	if len(result.Logs) != 1 {
		t.Fatalf("unexpected logs: %+v", result.Logs)
	}
	if result.Logs[0].Topic0 != "0xtopic0" || result.Logs[0].Topic2 != "" {
		t.Errorf("unexpected topic assembly: %+v", result.Logs[0])
	}
}

func TestFetcher_Fetch_MissingReceipt(t *testing.T) {
	txs := `[{"hash": "0xabc", "transactionIndex": "0x0", "from": "0xfrom", "to": "0xto", "value": "0x0", "gasPrice": "0x0", "nonce": "0x0"}]`

	rpc := &fakeRPC{responses: map[string]json.RawMessage{
		"eth_getBlockByNumber": blockJSON("0x64", "0x0", txs),
		"eth_getBlockReceipts": json.RawMessage(`[]`),
	}}

	f := New(rpc, fakeLimiter{}, 1)
	_, err := f.Fetch(context.Background(), 100)
	if err == nil {
		t.Fatal("expected error for missing receipt")
	}
}

func TestFetcher_Fetch_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	rpc := &fakeRPC{
		responses: map[string]json.RawMessage{
			"eth_getBlockReceipts": json.RawMessage(`[]`),
		},
	}
	rpc.errs = map[string]error{}

	f := New(callCountingRPC(&attempts, rpc), fakeLimiter{}, 3)
	_, err := f.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

// callCountingRPC wraps rpc so the first call to eth_getBlockByNumber fails
// once before succeeding, exercising the retry path.
func callCountingRPC(attempts *int, rpc *fakeRPC) RPCClient {
	return &flakyRPC{fakeRPC: rpc, attempts: attempts}
}

type flakyRPC struct {
	*fakeRPC
	attempts *int
}

func (f *flakyRPC) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if method == "eth_getBlockByNumber" {
		*f.attempts++
		if *f.attempts == 1 {
			return nil, errors.New("temporary rpc failure")
		}
		return blockJSON("0x1", "0x0", "[]"), nil
	}
	return f.fakeRPC.Call(ctx, method, params...)
}
