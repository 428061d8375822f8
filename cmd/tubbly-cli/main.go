package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"tubbly/crypto"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("TUBBLY_RPC_TOKEN")
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		if len(args) < 2 {
			fail("usage: tubbly-cli generate-key <key-file>")
		}
		generateKey(args[1])
	case "identity":
		if len(args) < 2 {
			fail("usage: tubbly-cli identity <key-file>")
		}
		showIdentity(args[1])
	case "new-id":
		fmt.Println(uuid.NewString())
	case "init":
		if len(args) < 2 {
			fail("usage: tubbly-cli init <key-file>")
		}
		initialize(args[1])
	case "submit":
		if len(args) < 3 {
			fail("usage: tubbly-cli submit <key-file> <amount> [request-id]")
		}
		requestID := ""
		if len(args) > 3 {
			requestID = args[3]
		}
		submit(args[1], args[2], requestID)
	case "confirm":
		if len(args) < 3 {
			fail("usage: tubbly-cli confirm <key-file> <request-id>")
		}
		confirm(args[1], args[2])
	case "balance":
		if len(args) < 2 {
			fail("usage: tubbly-cli balance <identity|key-file>")
		}
		balance(args[1])
	case "request":
		if len(args) < 2 {
			fail("usage: tubbly-cli request <request-id> [viewer-key-file]")
		}
		viewerKey := ""
		if len(args) > 2 {
			viewerKey = args[2]
		}
		getRequest(args[1], viewerKey)
	case "transfer-ownership":
		if len(args) < 3 {
			fail("usage: tubbly-cli transfer-ownership <key-file> <new-owner-identity>")
		}
		transferOwnership(args[1], args[2])
	case "reclaim":
		if len(args) < 3 {
			fail("usage: tubbly-cli reclaim <key-file> <request-id>")
		}
		reclaim(args[1], args[2])
	case "state":
		showState()
	case "events":
		limit := ""
		if len(args) > 1 {
			limit = args[1]
		}
		showEvents(limit)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`Usage: tubbly-cli [--rpc <url>] <command>

Commands:
  generate-key <key-file>                       create a new identity key
  identity <key-file>                           print the identity for a key
  new-id                                        print a fresh 128-bit request id
  init <key-file>                               initialize the ledger, caller becomes owner
  submit <key-file> <amount> [request-id]       submit a credit request
  confirm <key-file> <request-id>               confirm a request (owner only)
  balance <identity|key-file>                   print a user's balance
  request <request-id> [viewer-key-file]        print a stored request
  transfer-ownership <key-file> <new-owner>     hand ownership to a new identity
  reclaim <key-file> <request-id>               delete a confirmed request
  state                                         print owner and request counter
  events [limit]                                print recent ledger events`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("TUBBLY_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8645"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

// identityArg resolves a CLI argument that is either an encoded identity or a
// path to a key file.
func identityArg(arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		key, err := crypto.LoadKeyFile(arg)
		if err != nil {
			return "", err
		}
		return crypto.EncodeIdentity(key.Identity()), nil
	}
	if _, err := crypto.DecodeIdentity(arg); err != nil {
		return "", err
	}
	return arg, nil
}
