package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"tubbly/crypto"
)

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fail(fmt.Sprintf("generate key: %v", err))
	}
	if err := crypto.SaveKeyFile(path, key); err != nil {
		fail(fmt.Sprintf("save key: %v", err))
	}
	fmt.Printf("wrote %s\nidentity: %s\n", path, crypto.EncodeIdentity(key.Identity()))
}

func showIdentity(path string) {
	key, err := crypto.LoadKeyFile(path)
	if err != nil {
		fail(fmt.Sprintf("load key: %v", err))
	}
	fmt.Println(crypto.EncodeIdentity(key.Identity()))
}

func callerIdentity(keyFile string) string {
	key, err := crypto.LoadKeyFile(keyFile)
	if err != nil {
		fail(fmt.Sprintf("load key: %v", err))
	}
	return crypto.EncodeIdentity(key.Identity())
}

func initialize(keyFile string) {
	result, err := rpcCall("ledger_initialize", map[string]interface{}{
		"caller": callerIdentity(keyFile),
	})
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func submit(keyFile, amount, requestID string) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	result, err := rpcCall("ledger_submit", map[string]interface{}{
		"caller": callerIdentity(keyFile),
		"id":     requestID,
		"amount": amount,
	})
	if err != nil {
		fail(err.Error())
	}
	fmt.Printf("request id: %s\n", requestID)
	printJSON(result)
}

func confirm(keyFile, requestID string) {
	result, err := rpcCall("ledger_confirm", map[string]interface{}{
		"caller": callerIdentity(keyFile),
		"id":     requestID,
	})
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func balance(arg string) {
	user, err := identityArg(arg)
	if err != nil {
		fail(fmt.Sprintf("resolve identity: %v", err))
	}
	result, err := rpcCall("ledger_balanceOf", map[string]interface{}{
		"user": user,
	})
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func getRequest(requestID, viewerKeyFile string) {
	params := map[string]interface{}{"id": requestID}
	if viewerKeyFile != "" {
		params["viewer"] = callerIdentity(viewerKeyFile)
	}
	result, err := rpcCall("ledger_getRequest", params)
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func transferOwnership(keyFile, newOwner string) {
	resolved, err := identityArg(newOwner)
	if err != nil {
		fail(fmt.Sprintf("resolve new owner: %v", err))
	}
	result, err := rpcCall("ledger_changeOwnership", map[string]interface{}{
		"caller":   callerIdentity(keyFile),
		"newOwner": resolved,
	})
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func reclaim(keyFile, requestID string) {
	result, err := rpcCall("ledger_reclaim", map[string]interface{}{
		"caller": callerIdentity(keyFile),
		"id":     requestID,
	})
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func showState() {
	result, err := rpcCall("ledger_state", nil)
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func showEvents(limit string) {
	var params map[string]interface{}
	if limit != "" {
		var n int
		if _, err := fmt.Sscanf(limit, "%d", &n); err != nil {
			fail(fmt.Sprintf("invalid limit %q", limit))
		}
		params = map[string]interface{}{"limit": n}
	}
	result, err := rpcCall("ledger_events", params)
	if err != nil {
		fail(err.Error())
	}
	printJSON(result)
}

func printJSON(result json.RawMessage) {
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Println(string(result))
		return
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(result))
		return
	}
	_, _ = os.Stdout.Write(append(out, '\n'))
}
