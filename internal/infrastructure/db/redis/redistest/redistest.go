// Package redistest runs the Redis commands this service issues against an
// in-process keyspace. It plugs into go-redis as a hook, so no server or
// network is involved.
package redistest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScriptFunc answers EVAL/EVALSHA for one script. keys and args arrive as
// strings, the way Redis hands them to Lua.
type ScriptFunc func(keys, args []string) (any, error)

// replyError is an error reply from the keyspace. go-redis recognizes it as a
// server error, which Script.Run relies on to fall back from EVALSHA to EVAL.
type replyError string

func (e replyError) Error() string { return string(e) }

func (replyError) RedisError() {}

type entry struct {
	value     string
	expiresAt time.Time
}

// Server is the in-process keyspace behind a client returned by NewClient.
type Server struct {
	mu      sync.Mutex
	now     func() time.Time
	values  map[string]entry
	scripts map[string]ScriptFunc
	log     [][]string
}

// NewClient returns a go-redis client wired to a fresh Server. now drives key
// expiry; nil means time.Now.
func NewClient(now func() time.Time) (*redis.Client, *Server) {
	if now == nil {
		now = time.Now
	}
	srv := &Server{
		now:     now,
		values:  make(map[string]entry),
		scripts: make(map[string]ScriptFunc),
	}
	rdb := redis.NewClient(&redis.Options{Addr: "redistest:0", MaxRetries: -1})
	rdb.AddHook(srv)
	return rdb, srv
}

// HandleScript registers fn as the implementation of script.
func (s *Server) HandleScript(script *redis.Script, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[script.Hash()] = fn
}

// Commands returns every command received so far, arguments stringified.
func (s *Server) Commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.log))
	copy(out, s.log)
	return out
}

// TTL returns the remaining lifetime of key. ok is false for a missing key;
// a key without expiry reports 0.
func (s *Server) TTL(key string) (ttl time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, ok
	}
	return e.expiresAt.Sub(s.now()), true
}

func (s *Server) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("redistest: dialing is disabled")
	}
}

func (s *Server) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		s.process(cmd)
		return cmd.Err()
	}
}

func (s *Server) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		var first error
		for _, cmd := range cmds {
			s.process(cmd)
			if err := cmd.Err(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

func (s *Server) process(cmd redis.Cmder) {
	args := make([]string, len(cmd.Args()))
	for i, a := range cmd.Args() {
		args[i] = fmt.Sprint(a)
	}
	s.mu.Lock()
	s.log = append(s.log, args)
	s.mu.Unlock()

	switch strings.ToLower(cmd.Name()) {
	case "ping":
		setStatus(cmd, "PONG")
	case "set":
		s.set(cmd, args)
	case "get":
		s.get(cmd, args)
	case "exists", "del":
		s.countKeys(cmd, args)
	case "evalsha":
		s.eval(cmd, args[1], args[2:])
	case "eval":
		sum := sha1.Sum([]byte(args[1]))
		s.eval(cmd, hex.EncodeToString(sum[:]), args[2:])
	default:
		cmd.SetErr(fmt.Errorf("redistest: unsupported command %q", cmd.Name()))
	}
}

func (s *Server) set(cmd redis.Cmder, args []string) {
	if len(args) < 3 {
		cmd.SetErr(replyError("ERR wrong number of arguments for 'set' command"))
		return
	}
	e := entry{value: args[2]}
	for i := 3; i+1 < len(args); i += 2 {
		n, err := strconv.ParseInt(args[i+1], 10, 64)
		if err != nil || n <= 0 {
			cmd.SetErr(replyError("ERR invalid expire time in 'set' command"))
			return
		}
		switch strings.ToLower(args[i]) {
		case "ex":
			e.expiresAt = s.now().Add(time.Duration(n) * time.Second)
		case "px":
			e.expiresAt = s.now().Add(time.Duration(n) * time.Millisecond)
		default:
			cmd.SetErr(fmt.Errorf("redistest: unsupported set option %q", args[i]))
			return
		}
	}

	s.mu.Lock()
	s.values[args[1]] = e
	s.mu.Unlock()
	setStatus(cmd, "OK")
}

func (s *Server) get(cmd redis.Cmder, args []string) {
	s.mu.Lock()
	e, ok := s.lookup(args[1])
	s.mu.Unlock()
	if !ok {
		cmd.SetErr(redis.Nil)
		return
	}
	if c, ok := cmd.(*redis.StringCmd); ok {
		c.SetVal(e.value)
	}
}

func (s *Server) countKeys(cmd redis.Cmder, args []string) {
	s.mu.Lock()
	var n int64
	for _, key := range args[1:] {
		if _, ok := s.lookup(key); ok {
			n++
			if strings.EqualFold(args[0], "del") {
				delete(s.values, key)
			}
		}
	}
	s.mu.Unlock()
	if c, ok := cmd.(*redis.IntCmd); ok {
		c.SetVal(n)
	}
}

func (s *Server) eval(cmd redis.Cmder, sha string, rest []string) {
	s.mu.Lock()
	fn, ok := s.scripts[sha]
	s.mu.Unlock()
	if !ok {
		cmd.SetErr(replyError("NOSCRIPT No matching script. Please use EVAL."))
		return
	}
	numKeys, err := strconv.Atoi(rest[0])
	if err != nil || numKeys > len(rest)-1 {
		cmd.SetErr(replyError("ERR Number of keys can't be greater than number of args"))
		return
	}
	val, err := fn(rest[1:1+numKeys], rest[1+numKeys:])
	if err != nil {
		cmd.SetErr(err)
		return
	}
	if c, ok := cmd.(*redis.Cmd); ok {
		c.SetVal(val)
	}
}

// lookup returns a live entry, evicting it when expired. Callers hold s.mu.
func (s *Server) lookup(key string) (entry, bool) {
	e, ok := s.values[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.values, key)
		return entry{}, false
	}
	return e, true
}

func setStatus(cmd redis.Cmder, val string) {
	if c, ok := cmd.(*redis.StatusCmd); ok {
		c.SetVal(val)
	}
}
