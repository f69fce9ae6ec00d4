package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// FinalizeNodes names every node and substitutes ${VAR} in urls and auth values.
func (c *Config) FinalizeNodes() error {
	for name, n := range c.Nodes {
		n.Name = name
		n.URL = substituteEnvVars(n.URL)
		if n.Auth != nil {
			n.Auth.Key = substituteEnvVars(n.Auth.Key)
			n.Auth.Value = substituteEnvVars(n.Auth.Value)
		}

		u, err := url.Parse(n.URL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("node %s: invalid url: %q", name, n.URL)
		}
		c.Nodes[name] = n
	}
	return nil
}

// NodeList returns the nodes ordered by name, which is their failover order.
func (c *Config) NodeList() []NodeConfig {
	names := lo.Keys(c.Nodes)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) NodeConfig { return c.Nodes[name] })
}

func substituteEnvVars(s string) string {
	if s == "" {
		return s
	}
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		end += start
		varName := s[start+2 : end]
		envValue := os.Getenv(varName)
		s = strings.ReplaceAll(s, "${"+varName+"}", envValue)
	}
	return s
}
