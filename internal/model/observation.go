package model

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Kind discriminates the three technology variants an Observation can carry.
type Kind int

const (
	// KindCookie is a cookie from the browser context's cookie jar.
	KindCookie Kind = iota

	// KindRequest is a network request to a host other than the scanned site.
	KindRequest

	// KindStorage is a localStorage or sessionStorage entry.
	KindStorage
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCookie:
		return "cookie"
	case KindRequest:
		return "request"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "request":
		*k = KindRequest
	case "storage":
		*k = KindStorage
	default:
		*k = KindCookie
	}
	return nil
}

// CookiePayload holds the cookie-specific fields of an observation.
type CookiePayload struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`

	// Domain is the cookie domain as reported by the browser,
	// including a leading dot for domain cookies.
	Domain string `json:"domain"`
	Path   string `json:"path"`

	// Expires is the expiry as seconds since the Unix epoch.
	// Zero or negative means a session cookie.
	Expires  float64 `json:"expires"`
	Session  bool    `json:"session"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
}

// RequestPayload holds the request-specific fields of an observation.
type RequestPayload struct {
	URL          string `json:"url"`
	Hostname     string `json:"hostname"`
	ResourceType string `json:"resource_type,omitempty"`
}

// StorageArea names which Web Storage object an item lives in.
type StorageArea string

const (
	// StorageLocal is window.localStorage.
	StorageLocal StorageArea = "local"

	// StorageSession is window.sessionStorage.
	StorageSession StorageArea = "session"
)

// StoragePayload holds the storage-specific fields of an observation.
type StoragePayload struct {
	Area    StorageArea `json:"area"`
	Origin  string      `json:"origin"`
	Key     string      `json:"key"`
	Value   string      `json:"value,omitempty"`
	PageURL string      `json:"page_url"`
}

// Observation is a single detection of one technology instance on one page
// during one consent state. It is a tagged union: exactly one payload pointer
// is set, selected by Kind.
//
// Observations are ephemeral. They are produced by the collector and consumed
// by the aggregator within one crawl run.
type Observation struct {
	Kind    Kind            `json:"kind"`
	Cookie  *CookiePayload  `json:"cookie,omitempty"`
	Request *RequestPayload `json:"request,omitempty"`
	Storage *StoragePayload `json:"storage,omitempty"`
}

// NewCookieObservation wraps a cookie payload.
func NewCookieObservation(c CookiePayload) Observation {
	return Observation{Kind: KindCookie, Cookie: &c}
}

// NewRequestObservation wraps a request payload.
func NewRequestObservation(r RequestPayload) Observation {
	return Observation{Kind: KindRequest, Request: &r}
}

// NewStorageObservation wraps a storage payload.
func NewStorageObservation(s StoragePayload) Observation {
	return Observation{Kind: KindStorage, Storage: &s}
}

// Key is the stable identity of a technology across a crawl.
type Key struct {
	Kind    Kind   `json:"kind"`
	Natural string `json:"natural"`
}

// keySeparator joins natural key components. It cannot appear in cookie
// names, domains, or paths.
const keySeparator = "\x1f"

// Key computes the kind-specific natural key:
//   - cookie: name + domain + path
//   - request: absolute URL
//   - storage: origin + key
//
// An observation whose payload does not match its Kind yields a key with an
// empty Natural component.
func (o Observation) Key() Key {
	switch o.Kind {
	case KindCookie:
		if o.Cookie == nil {
			return Key{Kind: o.Kind}
		}
		return Key{Kind: o.Kind, Natural: strings.Join([]string{o.Cookie.Name, strings.ToLower(o.Cookie.Domain), o.Cookie.Path}, keySeparator)}
	case KindRequest:
		if o.Request == nil {
			return Key{Kind: o.Kind}
		}
		return Key{Kind: o.Kind, Natural: o.Request.URL}
	case KindStorage:
		if o.Storage == nil {
			return Key{Kind: o.Kind}
		}
		return Key{Kind: o.Kind, Natural: strings.Join([]string{o.Storage.Origin, o.Storage.Key}, keySeparator)}
	default:
		return Key{Kind: o.Kind}
	}
}

// Valid reports whether the payload matches the kind.
func (o Observation) Valid() bool {
	switch o.Kind {
	case KindCookie:
		return o.Cookie != nil && o.Cookie.Name != ""
	case KindRequest:
		return o.Request != nil && o.Request.URL != ""
	case KindStorage:
		return o.Storage != nil && o.Storage.Key != ""
	default:
		return false
	}
}

// Name returns a short human-readable label for the technology:
// the cookie name, the request hostname, or the storage key.
func (o Observation) Name() string {
	switch o.Kind {
	case KindCookie:
		if o.Cookie != nil {
			return o.Cookie.Name
		}
	case KindRequest:
		if o.Request != nil {
			return o.Request.Hostname
		}
	case KindStorage:
		if o.Storage != nil {
			return o.Storage.Key
		}
	}
	return ""
}

// ID returns a short, stable fingerprint of the key.
// The classifier echoes this identifier through the oracle so results can be
// rejoined without trusting the oracle to reproduce long URLs verbatim.
func (k Key) ID() string {
	sum := sha3.Sum256([]byte(k.Kind.String() + keySeparator + k.Natural))
	return k.Kind.String()[:1] + "-" + hex.EncodeToString(sum[:6])
}
