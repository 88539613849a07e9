package stomp

const (
	HeaderContentType  = "content-type"
	HeaderDestination  = "destination"
	HeaderFile         = "file"
	HeaderFilename     = "filename"
	HeaderID           = "id"
	HeaderLogin        = "login"
	HeaderMessage      = "message"
	HeaderMessageID    = "message-id"
	HeaderPasscode     = "passcode"
	HeaderReceipt      = "receipt"
	HeaderReceiptID    = "receipt-id"
	HeaderSession      = "session"
	HeaderSubscription = "subscription"
	HeaderVersion      = "version"
)

// Header is a single key:value line of a frame.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered set of frame headers. Keys are unique; the order of
// first insertion is kept so frames serialize the way they were built.
type Headers []Header

// NewHeaders builds Headers from alternating key, value arguments.
// A trailing key without a value is ignored.
func NewHeaders(kv ...string) Headers {
	h := make(Headers, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h = h.With(kv[i], kv[i+1])
	}
	return h
}

// Get returns the value stored under key and whether it was present.
func (h Headers) Get(key string) (string, bool) {
	for _, header := range h {
		if header.Key == key {
			return header.Value, true
		}
	}
	return "", false
}

// Value returns the value stored under key or an empty string.
func (h Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Has reports whether key is present.
func (h Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Keys returns the header keys in insertion order.
func (h Headers) Keys() []string {
	keys := make([]string, len(h))
	for i, header := range h {
		keys[i] = header.Key
	}
	return keys
}

// Clone returns a copy that shares no storage with h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	c := make(Headers, len(h))
	copy(c, h)
	return c
}

// With returns a copy of h where key is set to value. An existing key keeps
// its position, a new key is appended.
func (h Headers) With(key, value string) Headers {
	c := h.Clone()
	for i := range c {
		if c[i].Key == key {
			c[i].Value = value
			return c
		}
	}
	return append(c, Header{Key: key, Value: value})
}

// Without returns a copy of h with key removed.
func (h Headers) Without(key string) Headers {
	c := make(Headers, 0, len(h))
	for _, header := range h {
		if header.Key != key {
			c = append(c, header)
		}
	}
	return c
}

// Map returns the headers as a plain map.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, header := range h {
		m[header.Key] = header.Value
	}
	return m
}
