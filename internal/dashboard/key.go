package dashboard

import (
	"net/url"
	"sort"
	"strings"
)

// Collections shown by the dashboard.
const (
	CollectionPosDevices   = "pos_devices"
	CollectionCustomers    = "customers"
	CollectionAlerts       = "alerts"
	CollectionAlertsUnread = "alerts_unread"
	CollectionBranches     = "branches"
	CollectionEmployees    = "employees"
	CollectionSummary      = "summary"
)

// Key identifies one displayed query: a collection plus its filter
// parameters.
type Key struct {
	Collection string
	Params     map[string]string
}

// NewKey builds a key from alternating name/value pairs.
func NewKey(collection string, kv ...string) Key {
	k := Key{Collection: collection}
	if len(kv) >= 2 {
		k.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			k.Params[kv[i]] = kv[i+1]
		}
	}
	return k
}

// String returns the canonical form "collection?a=1&b=2" with parameters
// sorted by name. Keys with equal collection and parameters have equal
// strings.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Collection
	}
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(k.Collection)
	for i, name := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(k.Params[name]))
	}
	return b.String()
}

// Query returns the parameters as URL query values.
func (k Key) Query() url.Values {
	q := make(url.Values, len(k.Params))
	for name, v := range k.Params {
		q.Set(name, v)
	}
	return q
}
