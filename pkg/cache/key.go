package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces every cache key in Redis.
const keyPrefix = "crm:list"

// Key identifies a cached list response.
type Key struct {
	// Endpoint is the list path (e.g. "/customers/filter").
	Endpoint string

	// Query is the encoded request query (filters plus page/per_page).
	Query url.Values

	// Principal scopes entries to one authenticated account ("" when anonymous).
	Principal string
}

// String generates a deterministic key.
//
// Example:
//
//	crm:list:customers/filter:page=1:per_page=15:q=ahmed:who=staff-42
func (k Key) String() string {
	parts := []string{keyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
		}
	}

	if k.Principal != "" {
		parts = append(parts, "who="+k.Principal)
	}

	return strings.Join(parts, ":")
}
