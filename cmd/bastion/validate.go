package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/catalog"
)

var validateFlags struct {
	policy  string
	dir     string
	catalog []string
	format  string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate policy documents",
	Long: `Validate policy documents for syntax and semantic errors.

The validate command parses policy files and compiles them the way the
engine does at load time:
  - YAML/JSON syntax validation
  - Rule structure validation (names, priorities, thresholds)
  - Regular expression and IP range compilation
  - Managed rule set reference checks against loaded catalogs

Examples:
  # Validate a single policy
  bastion validate --policy policy.yaml

  # Validate a directory of policies
  bastion validate --dir policies/

  # Validate managed rule set references against a catalog
  bastion validate --policy policy.yaml --catalog rules/

  # JSON output for CI/CD
  bastion validate --policy policy.yaml --format json`,
	RunE: validatePolicies,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.policy, "policy", "p", "", "policy file to validate")
	validateCmd.Flags().StringVarP(&validateFlags.dir, "dir", "d", "", "directory of policy files")
	validateCmd.Flags().StringSliceVar(&validateFlags.catalog, "catalog", nil, "managed rule catalog files or directories")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult represents the validation result for a single policy file.
type ValidationResult struct {
	File   string   `json:"file"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func validatePolicies(cmd *cobra.Command, args []string) error {
	if validateFlags.policy == "" && validateFlags.dir == "" {
		return fmt.Errorf("either --policy or --dir must be specified")
	}

	var files []string
	if validateFlags.policy != "" {
		files = append(files, validateFlags.policy)
	}
	if validateFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
			matches, err := filepath.Glob(filepath.Join(validateFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list policy files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no policy files found")
	}

	var cat *catalog.Catalog
	if len(validateFlags.catalog) > 0 {
		var err error
		cat, err = catalog.Load(validateFlags.catalog...)
		if err != nil {
			return fmt.Errorf("failed to load rule catalog: %w", err)
		}
	}

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		results = append(results, validatePolicyFile(file, cat))
	}

	if validateFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("✓ %s\n", r.File)
				continue
			}
			fmt.Printf("✗ %s\n", r.File)
			for _, e := range r.Errors {
				fmt.Printf("    %s\n", e)
			}
		}
	}

	for _, r := range results {
		if !r.Valid {
			return fmt.Errorf("validation failed")
		}
	}
	return nil
}

func validatePolicyFile(path string, cat *catalog.Catalog) ValidationResult {
	result := ValidationResult{File: path, Valid: true}

	policy, err := waf.LoadPolicy(path)
	if err != nil {
		result.Valid = false
		var cfgErr *waf.ConfigError
		if errors.As(err, &cfgErr) {
			result.Errors = cfgErr.Errors
		} else {
			result.Errors = []string{err.Error()}
		}
		return result
	}

	// Referenced managed rule sets must exist in the catalog when one
	// was supplied.
	if cat != nil {
		for _, ref := range policy.ManagedSets {
			if _, ok := cat.RuleSet(ref.RuleSetType, ref.RuleSetVersion); !ok {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"managed rule set %s/%s not found in catalog",
					ref.RuleSetType, ref.RuleSetVersion,
				))
			}
		}
	}

	return result
}
