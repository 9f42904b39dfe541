package nephila

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

// mockConn 以内存缓冲实现net.Conn
type mockConn struct {
	in     *bytes.Reader
	out    bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func newMockConn(raw string) *mockConn {
	return &mockConn{in: bytes.NewReader([]byte(raw))}
}

func (c *mockConn) Read(b []byte) (int, error) { return c.in.Read(b) }
func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(b)
}
func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *mockConn) LocalAddr() net.Addr                { return nil }
func (c *mockConn) RemoteAddr() net.Addr               { return nil }
func (c *mockConn) SetDeadline(_ time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(_ time.Time) error { return nil }

type failingWriteConn struct {
	*mockConn
}

func (c *failingWriteConn) Write(_ []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

type panicRouterStore struct{}

func (panicRouterStore) ReadFile(_ string) ([]byte, error)  { panic("store exploded") }
func (panicRouterStore) WriteFile(_ string, _ []byte) error { return nil }

func newTestServer(opts ...ServerOption) (*Server, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewServer(NewRouter(NewFileStoreWithFs(fs)), opts...), fs
}

func startTestServer(t *testing.T, server *Server) chan error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error %s", err.Error())
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background(), ln)
	}()
	for server.GetRuntimeStatus().GetStatusOn() != ON_START {
		time.Sleep(5 * time.Millisecond)
	}
	return errCh
}

func roundTrip(t *testing.T, addr string, raw string) string {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial error %s", err.Error())
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	data, _ := io.ReadAll(conn)
	return string(data)
}

func TestHandleConn(t *testing.T) {
	convey.Convey("test handle echo on mock conn", t, func() {
		server, _ := newTestServer()
		conn := newMockConn("GET /echo/abc HTTP/1.1\r\nHost: localhost:4221\r\n\r\n")
		server.HandleConn(conn)
		convey.So(conn.out.String(), convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 3\r\ncontent-type: text/plain\r\n\r\nabc")
		convey.So(conn.closed, convey.ShouldBeTrue)
		convey.So(server.GetStatic().Get(RequestStats), convey.ShouldEqual, 1)
		convey.So(server.GetStatic().Get(StatusMetric(200)), convey.ShouldEqual, 1)
	})
	convey.Convey("test malformed request gets 400", t, func() {
		server, _ := newTestServer()
		conn := newMockConn("garbage\r\n\r\n")
		server.HandleConn(conn)
		convey.So(conn.out.String(), convey.ShouldEqual, "HTTP/1.1 400 Bad Request\r\n\r\n")
		convey.So(server.GetStatic().Get(ErrorStats), convey.ShouldEqual, 1)
	})
	convey.Convey("test empty connection gets no response", t, func() {
		server, _ := newTestServer()
		conn := newMockConn("")
		server.HandleConn(conn)
		convey.So(conn.out.Len(), convey.ShouldEqual, 0)
		convey.So(conn.closed, convey.ShouldBeTrue)
	})
	convey.Convey("test oversized request gets 413", t, func() {
		server, _ := newTestServer(ServerWithReadBufferSize(64))
		conn := newMockConn("POST /files/a HTTP/1.1\r\nContent-Length: 200\r\n\r\n" + strings.Repeat("x", 200))
		server.HandleConn(conn)
		convey.So(conn.out.String(), convey.ShouldEqual, "HTTP/1.1 413 Content Too Large\r\n\r\n")
	})
	convey.Convey("test panic is recovered", t, func() {
		server := NewServer(NewRouter(panicRouterStore{}))
		conn := newMockConn("GET /files/a HTTP/1.1\r\n\r\n")
		convey.So(func() { server.HandleConn(conn) }, convey.ShouldNotPanic)
		convey.So(conn.closed, convey.ShouldBeTrue)
		convey.So(server.GetStatic().Get(ErrorStats), convey.ShouldEqual, 1)
	})
	convey.Convey("test write failure is counted", t, func() {
		server, _ := newTestServer()
		conn := &failingWriteConn{newMockConn("GET / HTTP/1.1\r\n\r\n")}
		server.HandleConn(conn)
		convey.So(server.GetStatic().Get(ErrorStats), convey.ShouldEqual, 1)
		convey.So(server.GetStatic().Get(StatusMetric(200)), convey.ShouldEqual, 0)
	})
	convey.Convey("test truncated body is rejected before writing", t, func() {
		server, fs := newTestServer()
		conn := newMockConn("POST /files/new.txt HTTP/1.1\r\nContent-Length: 12\r\n\r\npayload")
		server.HandleConn(conn)
		convey.So(conn.out.String(), convey.ShouldEqual, "HTTP/1.1 400 Bad Request\r\n\r\n")
		exists, err := afero.Exists(fs, "new.txt")
		convey.So(err, convey.ShouldBeNil)
		convey.So(exists, convey.ShouldBeFalse)
		convey.So(server.GetStatic().Get(StatusMetric(201)), convey.ShouldEqual, 0)
	})
	convey.Convey("test unknown status falls back to 500", t, func() {
		server, _ := newTestServer()
		server.router.Handle("odd", GET, func(_ *Request, _ []string) (*Response, error) {
			return NewResponse(299), nil
		})
		conn := newMockConn("GET /odd HTTP/1.1\r\n\r\n")
		server.HandleConn(conn)
		convey.So(conn.out.String(), convey.ShouldEqual, "HTTP/1.1 500 Internal Server Error\r\n\r\n")
	})
	convey.Convey("test unique requests", t, func() {
		server, _ := newTestServer()
		for _, path := range []string{"/echo/a", "/echo/a", "/echo/b"} {
			server.HandleConn(newMockConn("GET " + path + " HTTP/1.1\r\n\r\n"))
		}
		convey.So(server.GetStatic().Get(RequestStats), convey.ShouldEqual, 3)
		convey.So(server.GetStatic().Get(UniqueRequestStats), convey.ShouldEqual, 2)
	})
}

func TestServe(t *testing.T) {
	convey.Convey("test serve scenarios", t, func() {
		server, fs := newTestServer()
		errCh := startTestServer(t, server)
		addr := server.Addr()

		convey.So(roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"), convey.ShouldEqual, "HTTP/1.1 200 OK\r\n\r\n")
		convey.So(roundTrip(t, addr, "GET /abcdefg HTTP/1.1\r\n\r\n"), convey.ShouldEqual, "HTTP/1.1 404 Not Found\r\n\r\n")
		convey.So(roundTrip(t, addr, "GET /user-agent HTTP/1.1\r\nHost: localhost:4221\r\nUser-Agent: foobar/1.2.3\r\n\r\n"),
			convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 12\r\ncontent-type: text/plain\r\n\r\nfoobar/1.2.3")

		gz := roundTrip(t, addr, "GET /echo/abc HTTP/1.1\r\nAccept-Encoding: invalid-1, gzip, invalid-2\r\n\r\n")
		resp, err := ParseResponse([]byte(gz))
		convey.So(err, convey.ShouldBeNil)
		convey.So(resp.Header().Get(HeaderContentEncoding), convey.ShouldEqual, "gzip")
		plain, err := gunzip(resp.Body())
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(plain), convey.ShouldEqual, "abc")

		convey.So(roundTrip(t, addr, "POST /files/number HTTP/1.1\r\nContent-Length: 5\r\n\r\n12345"),
			convey.ShouldEqual, "HTTP/1.1 201 Created\r\n\r\n")
		data, err := afero.ReadFile(fs, "number")
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(data), convey.ShouldEqual, "12345")
		convey.So(roundTrip(t, addr, "GET /files/number HTTP/1.1\r\n\r\n"),
			convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 5\r\ncontent-type: application/octet-stream\r\n\r\n12345")

		convey.So(server.Shutdown(context.Background()), convey.ShouldBeNil)
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
		convey.So(server.GetRuntimeStatus().GetStatusOn(), convey.ShouldEqual, ON_STOP)
		convey.So(server.GetStatic().Get(ConnectionStats), convey.ShouldEqual, 6)
	})
	convey.Convey("test concurrent connections", t, func() {
		server, _ := newTestServer(ServerWithMaxConnections(4))
		errCh := startTestServer(t, server)
		addr := server.Addr()

		// 一个未发送请求的连接不会阻塞其他连接
		idle, err := net.Dial("tcp", addr)
		convey.So(err, convey.ShouldBeNil)

		wg := &sync.WaitGroup{}
		results := make(chan string, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- roundTrip(t, addr, "GET /echo/hi HTTP/1.1\r\n\r\n")
			}()
		}
		wg.Wait()
		close(results)
		for r := range results {
			convey.So(r, convey.ShouldEndWith, "\r\n\r\nhi")
		}
		idle.Close()
		convey.So(server.Shutdown(context.Background()), convey.ShouldBeNil)
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
	})
	convey.Convey("test segmented request over tcp", t, func() {
		server, _ := newTestServer()
		errCh := startTestServer(t, server)
		conn, err := net.Dial("tcp", server.Addr())
		convey.So(err, convey.ShouldBeNil)
		_, _ = conn.Write([]byte("POST /files/seg HTTP/1.1\r\nContent-Length: 4\r\n\r\nab"))
		time.Sleep(50 * time.Millisecond)
		_, _ = conn.Write([]byte("cd"))
		data, _ := io.ReadAll(conn)
		conn.Close()
		convey.So(string(data), convey.ShouldEqual, "HTTP/1.1 201 Created\r\n\r\n")
		_ = server.Shutdown(context.Background())
		<-errCh
	})
	convey.Convey("test serve stops with context", t, func() {
		server, _ := newTestServer()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Serve(ctx, ln)
		}()
		time.Sleep(50 * time.Millisecond)
		cancel()
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
	})
	convey.Convey("test serve after shutdown", t, func() {
		server, _ := newTestServer()
		convey.So(server.Shutdown(context.Background()), convey.ShouldBeNil)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		convey.So(server.Serve(context.Background(), ln), convey.ShouldEqual, ErrServerClosed)
	})
	convey.Convey("test shutdown timeout closes connections", t, func() {
		server, _ := newTestServer(ServerWithTimeout(10*time.Second, 10*time.Second))
		errCh := startTestServer(t, server)
		idle, err := net.Dial("tcp", server.Addr())
		convey.So(err, convey.ShouldBeNil)
		defer idle.Close()
		for server.GetStatic().Get(ConnectionStats) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		convey.So(server.Shutdown(ctx), convey.ShouldResemble, context.DeadlineExceeded)
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
		convey.So(server.Shutdown(context.Background()), convey.ShouldBeNil)
	})
}

func TestListenAndServe(t *testing.T) {
	convey.Convey("test listen error", t, func() {
		patch := gomonkey.ApplyGlobalVar(&listen, func(_ context.Context, _ string, _ bool) (net.Listener, error) {
			return nil, errors.New("address already in use")
		})
		defer patch.Reset()
		server, _ := newTestServer()
		err := server.ListenAndServe(context.Background())
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(err.Error(), convey.ShouldContainSubstring, "address already in use")
	})
	convey.Convey("test listen with port reuse", t, func() {
		server, _ := newTestServer(ServerWithAddr("127.0.0.1", 0), ServerWithReusePort(true))
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe(ctx)
		}()
		for server.GetRuntimeStatus().GetStatusOn() != ON_START {
			time.Sleep(5 * time.Millisecond)
		}
		convey.So(server.Addr(), convey.ShouldNotEqual, "127.0.0.1:0")
		convey.So(roundTrip(t, server.Addr(), "GET / HTTP/1.1\r\n\r\n"), convey.ShouldEqual, "HTTP/1.1 200 OK\r\n\r\n")
		cancel()
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
	})
	convey.Convey("test server config option", t, func() {
		server, _ := newTestServer(ServerWithConfig(&ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadBufferSize: 2048,
			MaxConnections: 10,
			AcceptRate:     100,
			ReadTimeout:    time.Second,
			WriteTimeout:   2 * time.Second,
		}))
		convey.So(server.Addr(), convey.ShouldEqual, "0.0.0.0:8080")
		convey.So(server.readBufferSize, convey.ShouldEqual, 2048)
		convey.So(server.maxConnections, convey.ShouldEqual, 10)
		convey.So(server.readTimeout, convey.ShouldEqual, time.Second)
		convey.So(server.reusePort, convey.ShouldBeFalse)
		convey.So(server.limiter.(*DefaultLimiter).Rate(), convey.ShouldEqual, 100)
	})
}
