package cache

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderAlwaysMisses(t *testing.T) {
	var p Provider = NoopProvider{}
	require.NoError(t, p.Set(context.Background(), "k", []byte("v"), time.Minute))
	_, err := p.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryProviderExpiresEntries(t *testing.T) {
	p := NewMemoryProvider(4)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "export", []byte("a,b\n"), time.Minute))
	got, err := p.Get(ctx, "export")
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n"), got)

	now = now.Add(2 * time.Minute)
	_, err = p.Get(ctx, "export")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryProviderReturnsCopies(t *testing.T) {
	p := NewMemoryProvider(4)
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, p.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[1] = 'z'

	again, _ := p.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryProviderEvictsWhenFull(t *testing.T) {
	p := NewMemoryProvider(2)
	ctx := context.Background()
	require.NoError(t, p.Set(ctx, "soon", []byte("1"), time.Second))
	require.NoError(t, p.Set(ctx, "later", []byte("2"), time.Hour))
	require.NoError(t, p.Set(ctx, "new", []byte("3"), time.Hour))

	_, err := p.Get(ctx, "soon")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = p.Get(ctx, "later")
	assert.NoError(t, err)
	_, err = p.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryProviderDel(t *testing.T) {
	p := NewMemoryProvider(2)
	ctx := context.Background()
	require.NoError(t, p.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, p.Del(ctx, "k"))
	_, err := p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewSelectsBackend(t *testing.T) {
	p, err := New(false, BackendValkey, 0, ValkeyConfig{})
	require.NoError(t, err)
	assert.IsType(t, NoopProvider{}, p)

	p, err = New(true, "", 0, ValkeyConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, p)

	_, err = New(true, "memcached", 0, ValkeyConfig{})
	assert.Error(t, err)
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	srv := startFakeValkey(t, "secret")
	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.addr, Password: "secret", DB: 2, KeyPrefix: "pd:"})
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	_, err = p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	payload := []byte("Name,Gender\r\nAlice,Female\n")
	require.NoError(t, p.Set(ctx, "export", payload, 30*time.Second))
	got, err := p.Get(ctx, "export")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "30000", srv.lastTTL("pd:export"))
	assert.Equal(t, "2", srv.selectedDB())

	require.NoError(t, p.Del(ctx, "export"))
	_, err = p.Get(ctx, "export")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestValkeyProviderRejectsBadPassword(t *testing.T) {
	srv := startFakeValkey(t, "secret")
	_, err := NewValkeyProvider(ValkeyConfig{Addr: srv.addr, Password: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	_, err := NewValkeyProvider(ValkeyConfig{})
	assert.Error(t, err)
}

type fakeValkey struct {
	addr     string
	password string

	mu   sync.Mutex
	data map[string]string
	ttls map[string]string
	db   string
}

func startFakeValkey(t *testing.T, password string) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := &fakeValkey{
		addr:     ln.Addr().String(),
		password: password,
		data:     make(map[string]string),
		ttls:     make(map[string]string),
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn)
		}
	}()
	return srv
}

func (s *fakeValkey) lastTTL(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *fakeValkey) selectedDB() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

func (s *fakeValkey) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	authed := s.password == ""
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		cmd := strings.ToUpper(args[0])
		if !authed && cmd != "AUTH" {
			_, _ = io.WriteString(conn, "-NOAUTH Authentication required.\r\n")
			continue
		}
		switch cmd {
		case "AUTH":
			if args[len(args)-1] == s.password {
				authed = true
				_, _ = io.WriteString(conn, "+OK\r\n")
			} else {
				_, _ = io.WriteString(conn, "-WRONGPASS invalid password\r\n")
			}
		case "PING":
			_, _ = io.WriteString(conn, "+PONG\r\n")
		case "SELECT":
			s.mu.Lock()
			s.db = args[1]
			s.mu.Unlock()
			_, _ = io.WriteString(conn, "+OK\r\n")
		case "SET":
			s.mu.Lock()
			s.data[args[1]] = args[2]
			if len(args) == 5 {
				s.ttls[args[1]] = args[4]
			}
			s.mu.Unlock()
			_, _ = io.WriteString(conn, "+OK\r\n")
		case "GET":
			s.mu.Lock()
			v, ok := s.data[args[1]]
			s.mu.Unlock()
			if !ok {
				_, _ = io.WriteString(conn, "$-1\r\n")
				continue
			}
			_, _ = io.WriteString(conn, "$"+strconv.Itoa(len(v))+"\r\n"+v+"\r\n")
		case "DEL":
			s.mu.Lock()
			_, ok := s.data[args[1]]
			delete(s.data, args[1])
			s.mu.Unlock()
			n := 0
			if ok {
				n = 1
			}
			_, _ = io.WriteString(conn, ":"+strconv.Itoa(n)+"\r\n")
		default:
			_, _ = io.WriteString(conn, "-ERR unknown command\r\n")
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(header, "*") {
		return nil, errors.New("expected array")
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeLine[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}
