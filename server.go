// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package nephila

import (
	"context"
	"errors"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/net/netutil"
)

var serverLog *logrus.Entry = GetLogger("server")

// listen 创建监听,reusePort为true时开启端口复用
var listen = func(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = reusePortControl
	}
	return lc.Listen(ctx, "tcp", addr)
}

// Server TCP之上的HTTP/1.1服务
// 每个连接只处理一个请求,响应写完后关闭连接
type Server struct {
	addr           string
	router         *Router
	stats          StatisticInterface
	dupefilter     RFPDupeFilterInterface
	limiter        LimitInterface
	status         *RuntimeStatus
	readBufferSize int
	maxConnections int
	readTimeout    time.Duration
	writeTimeout   time.Duration
	reusePort      bool

	mu        sync.Mutex
	listener  net.Listener
	conns     map[net.Conn]struct{}
	wg        *conc.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// NewServer 构造服务,默认监听localhost:4221
func NewServer(router *Router, opts ...ServerOption) *Server {
	s := &Server{
		router:         router,
		stats:          NewDefaultStatistic(),
		dupefilter:     NewRFPDupeFilter(0.001, 1024*1024),
		limiter:        NewDefaultLimiter(0),
		status:         NewRuntimeStatus(),
		readBufferSize: DefaultReadBufferSize,
		readTimeout:    5 * time.Second,
		writeTimeout:   5 * time.Second,
		reusePort:      true,
		conns:          make(map[net.Conn]struct{}),
		wg:             conc.NewWaitGroup(),
		closed:         make(chan struct{}),
	}
	ServerWithAddr(DefaultHost, DefaultPort)(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Addr 实际监听的地址,未监听时为配置的地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// GetStatic 统计组件
func (s *Server) GetStatic() StatisticInterface {
	return s.stats
}

// GetRuntimeStatus 运行状态
func (s *Server) GetRuntimeStatus() *RuntimeStatus {
	return s.status
}

// ListenAndServe 监听配置的地址并处理连接,直到ctx取消或者调用Shutdown
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := listen(ctx, s.addr, s.reusePort)
	if err != nil {
		serverLog.Errorf("listen %s error %s", s.addr, err.Error())
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在ln上接收连接,每个连接由独立的goroutine处理
// 正常关闭时返回ErrServerClosed
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConnections > 0 {
		ln = netutil.LimitListener(ln, s.maxConnections)
	}
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	default:
	}
	s.listener = ln
	s.mu.Unlock()

	s.status.Start()
	serverLog.Infof("server %s listening on %s", ServerID, ln.Addr().String())
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Shutdown(context.Background())
		case <-s.closed:
		}
	}()

	var tempDelay time.Duration
	for {
		_ = s.limiter.CheckAndWaitLimiterPass()
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return ErrServerClosed
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				serverLog.Warnf("accept error %s, retrying in %v", err.Error(), tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			serverLog.Errorf("accept error %s", err.Error())
			_ = s.Shutdown(context.Background())
			return err
		}
		tempDelay = 0
		if !s.trackConn(conn) {
			conn.Close()
			return ErrServerClosed
		}
	}
}

// trackConn 记录连接并启动处理协程,服务关闭后返回false
// 与Shutdown持有同一把锁,关闭之后不会再有新的协程加入等待组
func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	s.stats.Incr(ConnectionStats)
	s.wg.Go(func() {
		s.HandleConn(conn)
	})
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Shutdown 停止接收新的连接并等待正在处理的连接完成
// ctx结束时强制关闭剩余的连接
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.closed)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
		s.status.Stop()
		serverLog.Infof("server %s stopped, stats %s", ServerID, Map2String(s.stats.GetAllStats()))
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// HandleConn 读取一个请求,路由后写回响应并关闭连接
// 处理过程中的panic被恢复并记录,不会影响其他连接
func (s *Server) HandleConn(conn net.Conn) {
	log := serverLog.WithFields(logrus.Fields{
		"conn_id": GetUUID(),
		"remote":  remoteAddr(conn),
	})
	defer func() {
		if p := recover(); p != nil {
			s.stats.Incr(ErrorStats)
			log.Errorf("handle connection panic %v\n%s", p, debug.Stack())
		}
		conn.Close()
		s.untrackConn(conn)
	}()
	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	raw, err := ReadRequest(conn, s.readBufferSize)
	if err != nil && !errors.Is(err, ErrRequestTooLarge) {
		if !errors.Is(err, ErrEmptyRequest) {
			s.stats.Incr(ErrorStats)
			log.Warnf("read request error %s", err.Error())
		} else {
			log.Debug("connection closed without request")
		}
		return
	}
	var resp *Response
	if err != nil {
		s.stats.Incr(ErrorStats)
		log.Warnf("read request error %s", err.Error())
		resp = NewResponse(StatusCodeOf(err))
	} else {
		resp = s.handleRequest(raw, log)
		if resp == nil {
			return
		}
	}
	s.writeResponse(conn, resp, log)
}

func (s *Server) handleRequest(raw []byte, log *logrus.Entry) *Response {
	req, err := ParseRequest(raw)
	if err != nil {
		if errors.Is(err, ErrEmptyRequest) {
			return nil
		}
		s.stats.Incr(ErrorStats)
		log.Warnf("parse request error %s", err.Error())
		return NewResponse(StatusCodeOf(err))
	}
	s.stats.Incr(RequestStats)
	if s.dupefilter != nil {
		seen, err := s.dupefilter.DoDupeFilter(req)
		if err == nil && !seen {
			s.stats.Incr(UniqueRequestStats)
		}
	}
	resp := s.router.Dispatch(req)
	log.Infof("%s %s %d", req.Method, req.Path, resp.Status())
	return resp
}

// writeResponse 无法序列化的响应回退为500
func (s *Server) writeResponse(conn net.Conn, resp *Response, log *logrus.Entry) {
	status := resp.Status()
	data, err := resp.Bytes()
	if err != nil {
		log.Errorf("build response error %s", err.Error())
		s.stats.Incr(ErrorStats)
		status = StatusInternalServerError
		data, _ = BuildResponse(status, nil, nil)
	}
	if s.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := conn.Write(data); err != nil {
		s.stats.Incr(ErrorStats)
		log.Warnf("write response error %s", err.Error())
		return
	}
	s.stats.Incr(StatusMetric(status))
}
