package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/catalog"
	"sentra-hq/bastion/pkg/waf/engine"
)

var evaluateFlags struct {
	policy  string
	catalog []string
	request string
	format  string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a request fixture against a policy",
	Long: `Evaluate a request fixture against a policy and print the verdict.

The fixture is a YAML file describing one HTTP request:

  method: POST
  uri: /login?user=admin
  headers:
    User-Agent: curl/8.0
    Cookie: session=abc
  client_ip: 203.0.113.7
  country: NL
  body: "user=admin&pass=x"

Examples:
  # Evaluate against a policy with managed rule catalogs
  bastion evaluate --policy policy.yaml --catalog rules/ --request req.yaml

  # JSON verdict output
  bastion evaluate --policy policy.yaml --request req.yaml --format json`,
	RunE: evaluateRequest,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.policy, "policy", "p", "", "policy file (required)")
	evaluateCmd.Flags().StringSliceVar(&evaluateFlags.catalog, "catalog", nil, "managed rule catalog files or directories")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.request, "request", "r", "", "request fixture file (required)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json")
	evaluateCmd.MarkFlagRequired("policy")
	evaluateCmd.MarkFlagRequired("request")
}

// requestFixture is the YAML shape of a request under evaluation.
type requestFixture struct {
	Method   string            `yaml:"method"`
	URI      string            `yaml:"uri"`
	Headers  map[string]string `yaml:"headers"`
	ClientIP string            `yaml:"client_ip"`
	Country  string            `yaml:"country"`
	Body     string            `yaml:"body"`
}

func evaluateRequest(cmd *cobra.Command, args []string) error {
	policy, err := waf.LoadPolicy(evaluateFlags.policy)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	cat := catalog.New()
	if len(evaluateFlags.catalog) > 0 {
		cat, err = catalog.Load(evaluateFlags.catalog...)
		if err != nil {
			return fmt.Errorf("failed to load rule catalog: %w", err)
		}
	}

	data, err := os.ReadFile(evaluateFlags.request)
	if err != nil {
		return fmt.Errorf("failed to read request fixture: %w", err)
	}
	var fixture requestFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse request fixture: %w", err)
	}

	eng, err := engine.New(nil, nil, engine.Options{Catalog: cat})
	if err != nil {
		return err
	}
	defer eng.Close()
	eng.SetPolicy(policy)

	req, err := fixtureRequest(eng, &fixture)
	if err != nil {
		return err
	}

	verdict := eng.Evaluate(context.Background(), req)

	if evaluateFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	}

	fmt.Printf("Action:         %s\n", verdict.Action)
	fmt.Printf("Mode:           %s\n", verdict.Mode)
	fmt.Printf("Policy version: %s\n", verdict.PolicyVersion)
	fmt.Printf("Anomaly score:  %d\n", verdict.AnomalyScore)
	if verdict.Reason != "" {
		fmt.Printf("Reason:         %s\n", verdict.Reason)
	}
	if len(verdict.MatchedRules) > 0 {
		fmt.Println("Matched rules:")
		for _, m := range verdict.MatchedRules {
			fmt.Printf("  - %s (%s, action %s, score %d)\n", m.RuleID, m.Tier, m.Action, m.Score)
		}
	}
	return nil
}

// fixtureRequest turns a fixture into a normalized request context via
// the same HTTP path the engine uses in production.
func fixtureRequest(eng *engine.Engine, fixture *requestFixture) (*engine.RequestContext, error) {
	method := fixture.Method
	if method == "" {
		method = http.MethodGet
	}
	uri := fixture.URI
	if uri == "" {
		uri = "/"
	}
	if _, err := url.ParseRequestURI(uri); err != nil {
		return nil, fmt.Errorf("invalid request uri %q: %w", uri, err)
	}

	var body *strings.Reader
	if fixture.Body != "" {
		body = strings.NewReader(fixture.Body)
	} else {
		body = strings.NewReader("")
	}

	httpReq, err := http.NewRequest(method, "http://fixture.invalid"+uri, body)
	if err != nil {
		return nil, err
	}
	for name, value := range fixture.Headers {
		httpReq.Header.Set(name, value)
	}
	if fixture.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if fixture.ClientIP != "" {
		httpReq.RemoteAddr = fixture.ClientIP + ":0"
	}

	req, err := eng.FromHTTP(httpReq)
	if err != nil {
		return nil, err
	}
	if fixture.Country != "" {
		req.Country = fixture.Country
	}
	return req, nil
}
