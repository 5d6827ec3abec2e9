// isnadctl is the operator CLI for the trust substrate. Key material
// stays local: signing commands load an identity file and emit (or
// submit) signed wire records; query commands talk to a running isnadd.
//
// Exit codes: 0 success, 1 operational failure, 2 usage error.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

const defaultServer = "http://localhost:8080"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "create-identity":
		return cmdCreateIdentity(args[1:])
	case "attest":
		return cmdAttest(args[1:])
	case "verify":
		return cmdVerify(args[1:])
	case "revoke":
		return cmdRevoke(args[1:])
	case "trust-score":
		return cmdTrustScore(args[1:])
	case "compare":
		return cmdCompare(args[1:])
	case "health":
		return cmdHealth(args[1:])
	case "chain-dump":
		return cmdChainDump(args[1:])
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: isnadctl <command> [flags]

commands:
  create-identity  generate a keypair and write it to an identity file
  attest           sign an attestation about a subject
  verify           verify a signed attestation file
  revoke           sign and submit a revocation
  trust-score      query an agent's direct trust score
  compare          compare trust scores of two agents
  health           check service health
  chain-dump       export the service's trust bundle`)
}

// loadIdentity reads a hex-encoded private key file written by
// create-identity.
func loadIdentity(path string) (*identity.AgentIdentity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	priv, err := hex.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("identity file is not valid hex: %w", err)
	}
	return identity.FromPrivateKey(priv)
}

func cmdCreateIdentity(args []string) int {
	fs := flag.NewFlagSet("create-identity", flag.ContinueOnError)
	out := fs.String("out", "identity.key", "path to write the private key (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	agent, err := identity.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate identity: %v\n", err)
		return 1
	}
	priv, err := agent.ExportPrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export key: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, []byte(hex.EncodeToString(priv)+"\n"), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		return 1
	}

	fmt.Printf("agent_id:   %s\n", agent.AgentID())
	fmt.Printf("public_key: %s\n", agent.PublicKeyHex())
	fmt.Printf("key file:   %s\n", *out)
	return 0
}

func cmdAttest(args []string) int {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	keyFile := fs.String("key", "identity.key", "witness identity file")
	subject := fs.String("subject", "", "subject agent_id (required)")
	task := fs.String("task", "", "task scope label (required)")
	evidence := fs.String("evidence", "", "evidence URI or description")
	submit := fs.String("submit", "", "server URL to POST the attestation to (optional)")
	apiKey := fs.String("api-key", "", "API key for submission")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *subject == "" || *task == "" {
		fmt.Fprintln(os.Stderr, "attest: -subject and -task are required")
		return 2
	}

	witness, err := loadIdentity(*keyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load identity: %v\n", err)
		return 1
	}
	att, err := trustchain.NewAttestation(witness, *subject, *task, *evidence, time.Time{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign attestation: %v\n", err)
		return 1
	}
	wire, err := att.ToJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode attestation: %v\n", err)
		return 1
	}

	if *submit != "" {
		if err := postJSON(*submit+"/api/attestations", *apiKey, wire); err != nil {
			fmt.Fprintf(os.Stderr, "submit: %v\n", err)
			return 1
		}
		fmt.Printf("submitted %s\n", att.AttestationID())
		return 0
	}
	fmt.Println(string(wire))
	return 0
}

func cmdVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	file := fs.String("file", "", "attestation JSON file (required; - for stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "verify: -file is required")
		return 2
	}

	var data []byte
	var err error
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read attestation: %v\n", err)
		return 1
	}

	att, err := trustchain.AttestationFromJSON(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode attestation: %v\n", err)
		return 1
	}
	if !att.Verify() {
		fmt.Println("INVALID")
		return 1
	}
	fmt.Printf("VALID %s (witness %s -> subject %s, task %q)\n",
		att.AttestationID(), att.Witness, att.Subject, att.Task)
	return 0
}

func cmdRevoke(args []string) int {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	keyFile := fs.String("key", "identity.key", "revoker identity file")
	target := fs.String("target", "", "target agent_id or record id (required)")
	reason := fs.String("reason", string(revocation.ReasonOther), "revocation reason")
	scope := fs.String("scope", "", "scope to revoke (empty = global)")
	submit := fs.String("submit", defaultServer, "server URL to POST the revocation to")
	apiKey := fs.String("api-key", "", "API key for submission")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *target == "" {
		fmt.Fprintln(os.Stderr, "revoke: -target is required")
		return 2
	}

	revoker, err := loadIdentity(*keyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load identity: %v\n", err)
		return 1
	}
	entry, err := revocation.NewEntry(revoker, *target, revocation.Reason(*reason), *scope, time.Time{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign revocation: %v\n", err)
		return 1
	}

	body, err := json.Marshal(map[string]interface{}{
		"entry":          entry,
		"revoker_pubkey": revoker.PublicKeyHex(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode revocation: %v\n", err)
		return 1
	}
	if err := postJSON(*submit+"/api/revocations", *apiKey, body); err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		return 1
	}
	fmt.Printf("revoked %s\n", *target)
	return 0
}

func cmdTrustScore(args []string) int {
	fs := flag.NewFlagSet("trust-score", flag.ContinueOnError)
	server := fs.String("server", defaultServer, "server URL")
	agent := fs.String("agent", "", "agent_id (required)")
	scope := fs.String("scope", "", "optional scope filter")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *agent == "" {
		fmt.Fprintln(os.Stderr, "trust-score: -agent is required")
		return 2
	}

	score, err := fetchScore(*server, *agent, *scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		return 1
	}
	fmt.Printf("%s: %.4f\n", *agent, score)
	return 0
}

func cmdCompare(args []string) int {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	server := fs.String("server", defaultServer, "server URL")
	a := fs.String("a", "", "first agent_id (required)")
	b := fs.String("b", "", "second agent_id (required)")
	scope := fs.String("scope", "", "optional scope filter")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *a == "" || *b == "" {
		fmt.Fprintln(os.Stderr, "compare: -a and -b are required")
		return 2
	}

	scoreA, err := fetchScore(*server, *a, *scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query %s: %v\n", *a, err)
		return 1
	}
	scoreB, err := fetchScore(*server, *b, *scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query %s: %v\n", *b, err)
		return 1
	}

	fmt.Printf("%s: %.4f\n%s: %.4f\n", *a, scoreA, *b, scoreB)
	switch {
	case scoreA > scoreB:
		fmt.Printf("higher: %s\n", *a)
	case scoreB > scoreA:
		fmt.Printf("higher: %s\n", *b)
	default:
		fmt.Println("equal")
	}
	return 0
}

func cmdHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	server := fs.String("server", defaultServer, "server URL")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	resp, err := http.Get(*server + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(bytes.TrimSpace(body)))
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func cmdChainDump(args []string) int {
	fs := flag.NewFlagSet("chain-dump", flag.ContinueOnError)
	server := fs.String("server", defaultServer, "server URL")
	out := fs.String("out", "", "write bundle to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	resp, err := http.Get(*server + "/api/bundle/export")
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "export: server returned %s\n", resp.Status)
		return 1
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}

	if *out != "" {
		if err := os.WriteFile(*out, body, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
			return 1
		}
		fmt.Printf("wrote %s (%d bytes)\n", *out, len(body))
		return 0
	}
	fmt.Println(string(body))
	return 0
}

func postJSON(url, apiKey string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

func fetchScore(server, agent, scope string) (float64, error) {
	url := server + "/api/trust/score/" + agent
	if scope != "" {
		url += "?scope=" + scope
	}
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned %s", resp.Status)
	}
	var out struct {
		TrustScore float64 `json:"trust_score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.TrustScore, nil
}
