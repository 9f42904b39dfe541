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
	"net"
	"strconv"
	"time"
)

// ServerOption 服务构造过程中的可选参数
type ServerOption func(s *Server)

// ServerWithAddr 监听地址
func ServerWithAddr(host string, port int) ServerOption {
	return func(s *Server) {
		s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

// ServerWithStatistic 统计组件,例如多个实例共享的redis统计
func ServerWithStatistic(stats StatisticInterface) ServerOption {
	return func(s *Server) {
		s.stats = stats
	}
}

// ServerWithDupeFilter 请求去重组件,用于统计unique_requests
func ServerWithDupeFilter(filter RFPDupeFilterInterface) ServerOption {
	return func(s *Server) {
		s.dupefilter = filter
	}
}

// ServerWithLimiter 接收连接的限速器
func ServerWithLimiter(limiter LimitInterface) ServerOption {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// ServerWithReadBufferSize 单个请求最多读取的字节数
func ServerWithReadBufferSize(size int) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.readBufferSize = size
		}
	}
}

// ServerWithMaxConnections 同时处理的最大连接数,0表示不限制
func ServerWithMaxConnections(n int) ServerOption {
	return func(s *Server) {
		s.maxConnections = n
	}
}

// ServerWithTimeout 读写超时,0表示不设置
func ServerWithTimeout(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// ServerWithReusePort 是否开启SO_REUSEPORT
func ServerWithReusePort(reuse bool) ServerOption {
	return func(s *Server) {
		s.reusePort = reuse
	}
}

// ServerWithConfig 使用配置文件中的参数
func ServerWithConfig(cfg *ServerConfig) ServerOption {
	return func(s *Server) {
		ServerWithAddr(cfg.Host, cfg.Port)(s)
		ServerWithReadBufferSize(cfg.ReadBufferSize)(s)
		ServerWithMaxConnections(cfg.MaxConnections)(s)
		ServerWithTimeout(cfg.ReadTimeout, cfg.WriteTimeout)(s)
		ServerWithReusePort(cfg.ReusePort)(s)
		s.limiter = NewDefaultLimiter(cfg.AcceptRate)
	}
}
