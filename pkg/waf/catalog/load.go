package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"sentra-hq/bastion/pkg/waf"
)

// Load reads and compiles rule set files from the given paths. Each path
// may be a single YAML file or a directory, in which case all .yaml and
// .yml files in it are loaded. Loading is all-or-nothing: any rule whose
// pattern fails to compile rejects the load.
func Load(paths ...string) (*Catalog, error) {
	c := New()
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat catalog path %q: %w", path, err)
		}

		if info.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read catalog directory %q: %w", path, err)
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				ext := filepath.Ext(entry.Name())
				if ext != ".yaml" && ext != ".yml" {
					continue
				}
				if err := c.loadFile(filepath.Join(path, entry.Name())); err != nil {
					return nil, err
				}
			}
		} else {
			if err := c.loadFile(path); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Catalog) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("failed to parse catalog file %q: %w", path, err)
	}

	if err := compileRuleSet(&rs); err != nil {
		return fmt.Errorf("catalog file %q: %w", path, err)
	}

	c.sets[setKey(rs.Type, rs.Version)] = &rs
	return nil
}

func compileRuleSet(rs *RuleSet) error {
	if rs.Type == "" {
		return fmt.Errorf("rule set has no type")
	}
	if rs.Version == "" {
		return fmt.Errorf("rule set %q has no version", rs.Type)
	}

	rs.index = make(map[string]*Rule)
	for _, group := range rs.Groups {
		for _, rule := range group.Rules {
			if rule.ID == "" {
				return fmt.Errorf("group %q contains a rule with no id", group.Name)
			}
			if _, dup := rs.index[rule.ID]; dup {
				return fmt.Errorf("duplicate rule id %q", rule.ID)
			}

			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				return fmt.Errorf("rule %q: invalid pattern: %w", rule.ID, err)
			}
			rule.re = re
			rule.GroupName = group.Name
			rule.Severity = Severity(strings.ToLower(string(rule.Severity)))
			if rule.Action == "" {
				rule.Action = waf.ActionBlock
			}
			if len(rule.Targets) == 0 {
				// Inspect the request line and all argument values by default.
				rule.Targets = []Target{
					{Variable: waf.VarRequestURI},
					{Variable: waf.VarQueryArgs},
					{Variable: waf.VarPostArgs},
					{Variable: waf.VarCookies},
					{Variable: waf.VarRequestBody},
				}
			}

			rs.index[rule.ID] = rule
		}
	}
	return nil
}
