/*
Package server implements msgpack IPC for namegram models.

The server reads one msgpack request at a time from stdin and writes one
msgpack response per request to stdout. Logs go to stderr so they never
interleave with responses.

# IPC

Every request carries an ID and an action. The rest of the fields depend on
the action:

	{"id": "r1", "action": "learn", "tokens": ["get", "user", "name"]}
	{"id": "r2", "action": "top", "tokens": ["get", "user"], "l": 5}
	{"id": "r3", "action": "counts", "tokens": ["get", "user"]}

Suggestions come back ranked, best first:

	{"id": "r2", "s": [{"w": "name", "r": 1, "n": 12}, {"w": "id", "r": 2, "n": 4}], "c": 2, "t": 31}

Model management uses the same envelope:

	{"id": "m1", "action": "save", "dir": "model/"}
	{"id": "m2", "action": "load", "dir": "model/"}
	{"id": "m3", "action": "stats"}

Failed requests get a CompletionError with an HTTP style code.

# Actions

	learn     count every window of tokens, remembering identifiers at ids
	forget    uncount every window of tokens
	remember  mark tokens as identifiers
	counts    exact and context count of tokens
	top       successors of tokens, optionally constrained by right context
	complete  vocabulary tokens starting with a prefix
	save      write the model directory, replying with its size in MB
	load      serve a saved model directory and warm its counters
	stats     model and cache statistics
	config    change server limits and persist them
	health    liveness probe
*/
package server

// Request is the single request envelope.
type Request struct {
	ID     string   `msgpack:"id"`
	Action string   `msgpack:"action"`
	Tokens []string `msgpack:"tokens,omitempty"`
	// Right is the context after the wanted token for "top".
	Right  []string `msgpack:"right,omitempty"`
	Prefix string   `msgpack:"p,omitempty"`
	Limit  int      `msgpack:"l,omitempty"`
	// Identifiers restricts "top" to remembered identifiers.
	Identifiers bool `msgpack:"only_ids,omitempty"`
	// IDs are token positions remembered as identifiers by "learn".
	IDs []int  `msgpack:"ids,omitempty"`
	Dir string `msgpack:"dir,omitempty"`

	MaxLimit     *int `msgpack:"max_limit,omitempty"`
	DefaultLimit *int `msgpack:"default_limit,omitempty"`
}

// CompletionSuggestion - minimal suggestion response
type CompletionSuggestion struct {
	Word       string `msgpack:"w"`
	Rank       uint16 `msgpack:"r"`
	Count      int64  `msgpack:"n,omitempty"`
	Identifier bool   `msgpack:"i,omitempty"`
}

// CompletionResponse answers "top" and "complete".
type CompletionResponse struct {
	ID          string                 `msgpack:"id"`
	Suggestions []CompletionSuggestion `msgpack:"s"`
	Count       int                    `msgpack:"c"`
	TimeTaken   int64                  `msgpack:"t"`
}

// CountsResponse answers "counts".
type CountsResponse struct {
	ID        string `msgpack:"id"`
	Exact     int64  `msgpack:"e"`
	Context   int64  `msgpack:"x"`
	TimeTaken int64  `msgpack:"t"`
}

// ModelResponse answers learn, forget, remember, save and load.
type ModelResponse struct {
	ID      string  `msgpack:"id"`
	Status  string  `msgpack:"status"`
	Error   string  `msgpack:"error,omitempty"`
	Windows int     `msgpack:"windows,omitempty"`
	SizeMB  float64 `msgpack:"size_mb,omitempty"`
}

// StatsResponse answers "stats".
type StatsResponse struct {
	ID            string `msgpack:"id"`
	Words         int    `msgpack:"words"`
	Sequences     int64  `msgpack:"sequences"`
	Nodes         int    `msgpack:"nodes"`
	Remembered    int    `msgpack:"remembered"`
	Loaded        bool   `msgpack:"loaded"`
	Bidirectional bool   `msgpack:"bidirectional"`
	Forgotten     int64  `msgpack:"forgotten"`
	Relearned     int64  `msgpack:"relearned"`
	CacheStatic   int    `msgpack:"cache_static"`
	CacheDynamic  int    `msgpack:"cache_dynamic"`
	CacheHits     int64  `msgpack:"cache_hits"`
	CacheMisses   int64  `msgpack:"cache_misses"`
	Requests      int64  `msgpack:"requests"`
}

// ConfigResponse - config operation response
type ConfigResponse struct {
	ID           string `msgpack:"id"`
	Status       string `msgpack:"status"`
	Error        string `msgpack:"error,omitempty"`
	MaxLimit     int    `msgpack:"max_limit"`
	DefaultLimit int    `msgpack:"default_limit"`
}

// CompletionError holds basic error information for failed requests
type CompletionError struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
