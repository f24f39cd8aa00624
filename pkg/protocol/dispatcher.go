package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/peterlharding/dserver/pkg/logging"
	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/source"
)

// Registry resolves names and handles to sources.
type Registry interface {
	Lookup(name string) int
	Get(handle int) (source.Source, bool)
	Len() int
}

// ServerInfo is the INIT reply for structured clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Sources int    `json:"sources"`
}

// Dispatcher processes requests against a registry. It holds no mutable
// state of its own and is safe for concurrent use.
type Dispatcher struct {
	registry Registry
	logger   *slog.Logger
	version  string
	verbs    map[string]verb
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithVersion sets the version reported by INIT.
func WithVersion(version string) Option {
	return func(d *Dispatcher) {
		d.version = version
	}
}

// verb is the handler for one source operation. args excludes the verb
// and the handle.
type verb struct {
	args int
	run  func(src source.Source, args []string) (string, error)
}

// errUnsupported marks a verb the addressed source cannot serve.
var errUnsupported = errors.New("operation not supported by source type")

// NewDispatcher creates a dispatcher for reg.
func NewDispatcher(reg Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		logger:   logging.Nop(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")

	d.verbs = map[string]verb{
		"GETN":  {args: 0, run: getNext},
		"GETK":  {args: 1, run: getKeyed},
		"GETKR": {args: 1, run: getKeyedRandom},
		"GETKS": {args: 1, run: getKeyedSequence},
		"GETH":  {args: 1, run: getHashed},
		"GETI":  {args: 1, run: getIndexed},
		"GETB":  {args: 1, run: getBarcode},
		"STOC":  {args: 1, run: storeList},
		"STOK":  {args: 2, run: storeKeyed},
	}
	return d
}

// Process handles one raw request and returns its reply. A trailing
// newline or carriage return is ignored. Process never panics.
func (d *Dispatcher) Process(sess *Session, raw string) (reply string) {
	start := time.Now()
	raw = strings.TrimRight(raw, "\r\n")
	fields := strings.Split(raw, "|")
	name := fields[0]

	result := metrics.ResultOK
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic processing request", "session", sess.ID, "request", raw, "panic", r)
			reply = TokenError
			result = metrics.ResultBad
		}
		sess.count()
		label := name
		if _, known := d.verbs[name]; !known && !isSessionVerb(name) {
			label = "unknown"
		}
		metrics.ObserveRequest(label, result, time.Since(start))
		d.logger.Debug("request", "session", sess.ID, "request", raw, "reply", reply)
	}()

	if strings.ContainsAny(raw, "\r\n") {
		result = metrics.ResultBad
		return TokenBadMessage
	}

	switch name {
	case "INIT":
		if len(fields) != 2 {
			result = metrics.ResultBad
			return TokenBadMessage
		}
		return d.init(sess, fields[1])
	case "REG":
		if len(fields) != 2 {
			result = metrics.ResultBad
			return TokenBadMessage
		}
		return d.register(sess, fields[1])
	case "REGK", "REGI":
		want := 3
		if name == "REGI" {
			want = 2
		}
		if len(fields) != want {
			result = metrics.ResultBad
			return TokenBadMessage
		}
		return ReplyOK
	}

	v, ok := d.verbs[name]
	if !ok {
		result = metrics.ResultBad
		return ReplyNone
	}
	if len(fields) != v.args+2 {
		result = metrics.ResultBad
		return TokenBadMessage
	}

	src, ok := d.resolve(fields[1])
	if !ok {
		result = metrics.ResultBad
		return TokenBadHandle
	}

	value, err := v.run(src, fields[2:])
	store := name == "STOC" || name == "STOK"
	switch {
	case errors.Is(err, errUnsupported):
		result = metrics.ResultBad
		if store {
			return ReplyNotStored
		}
		return TokenUnknownSourceType
	case err != nil && store:
		var rerr *source.RecordError
		if errors.As(err, &rerr) {
			d.logger.Warn("store rejected", "source", src.Name(), "error", err)
			result = metrics.ResultBad
			return ReplyNotStored
		}
		d.logger.Error("store failed", "source", src.Name(), "error", err)
		result = metrics.ResultError
		return ReplyNotStored
	case err != nil:
		result = metrics.ResultToken
		return ToReply(err)
	}
	return value
}

func isSessionVerb(name string) bool {
	switch name {
	case "INIT", "REG", "REGK", "REGI":
		return true
	}
	return false
}

func (d *Dispatcher) init(sess *Session, lang string) string {
	sess.SetLanguage(lang)
	if !sess.Structured() {
		return ReplyOK
	}
	data, err := json.Marshal(ServerInfo{Name: "dserver", Version: d.version, Sources: d.registry.Len()})
	if err != nil {
		return TokenError
	}
	return string(data)
}

func (d *Dispatcher) register(sess *Session, name string) string {
	handle := d.registry.Lookup(strings.TrimSpace(name))
	if handle < 0 || !sess.Structured() {
		return strconv.Itoa(handle)
	}
	src, ok := d.registry.Get(handle)
	if !ok {
		return strconv.Itoa(handle)
	}
	data, err := json.Marshal(src.Attributes())
	if err != nil {
		return TokenError
	}
	return fmt.Sprintf("%d|%s", handle, data)
}

func (d *Dispatcher) resolve(handle string) (source.Source, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(handle))
	if err != nil {
		return nil, false
	}
	return d.registry.Get(n)
}

func getNext(src source.Source, _ []string) (string, error) {
	r, ok := src.(source.NextReader)
	if !ok {
		return "", errUnsupported
	}
	return r.Next()
}

func getKeyed(src source.Source, args []string) (string, error) {
	r, ok := src.(source.GroupReader)
	if !ok {
		return "", errUnsupported
	}
	return r.NextInGroup(args[0])
}

func getKeyedRandom(src source.Source, args []string) (string, error) {
	r, ok := src.(source.GroupReader)
	if !ok {
		return "", errUnsupported
	}
	return r.RandomInGroup(args[0])
}

func getKeyedSequence(src source.Source, args []string) (string, error) {
	r, ok := src.(source.KeyReader)
	if !ok {
		return "", errUnsupported
	}
	return r.NextForKey(args[0])
}

func getHashed(src source.Source, args []string) (string, error) {
	r, ok := src.(source.HashReader)
	if !ok {
		return "", errUnsupported
	}
	return r.Lookup(args[0])
}

func getIndexed(src source.Source, args []string) (string, error) {
	r, ok := src.(source.IndexReader)
	if !ok {
		return "", errUnsupported
	}
	return r.At(args[0])
}

func getBarcode(src source.Source, args []string) (string, error) {
	r, ok := src.(source.BarcodeReader)
	if !ok {
		return "", errUnsupported
	}
	return r.NextBarcode(args[0])
}

func storeList(src source.Source, args []string) (string, error) {
	a, ok := src.(source.Appender)
	if !ok {
		return "", errUnsupported
	}
	if err := a.Append(args[0]); err != nil {
		return "", err
	}
	return ReplyStored, nil
}

func storeKeyed(src source.Source, args []string) (string, error) {
	a, ok := src.(source.GroupAppender)
	if !ok {
		return "", errUnsupported
	}
	if err := a.AppendToGroup(args[0], args[1]); err != nil {
		return "", err
	}
	return ReplyStored, nil
}
