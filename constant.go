// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package nephila

// StatusType 服务当前的运行状态
type StatusType uint

const (
	// ON_START 运行中
	ON_START StatusType = iota
	// ON_STOP 已停止
	ON_STOP
)

// GetTypeName 获取服务状态的字符串形式
func (p StatusType) GetTypeName() string {
	switch p {
	case ON_START:
		return "running"
	case ON_STOP:
		return "stop"
	}
	return "unknown"
}

// RequestMethod 请求方式
type RequestMethod string

const (
	GET     RequestMethod = "GET"
	POST    RequestMethod = "POST"
	PUT     RequestMethod = "PUT"
	DELETE  RequestMethod = "DELETE"
	HEAD    RequestMethod = "HEAD"
	OPTIONS RequestMethod = "OPTIONS"
	PATCH   RequestMethod = "PATCH"
	// AnyMethod 路由表中匹配任意请求方式
	AnyMethod RequestMethod = "*"
)

const (
	// CRLF 行结束符
	CRLF = "\r\n"
	// HTTPVersion 响应使用的协议版本
	HTTPVersion = "HTTP/1.1"
	// DefaultReadBufferSize 单次请求允许读取的最大字节数
	// 请求头和请求体都必须落在这个缓冲区内
	DefaultReadBufferSize = 1024
	// DefaultHost 默认监听地址
	DefaultHost = "localhost"
	// DefaultPort 默认监听端口
	DefaultPort = 4221
)

const (
	HeaderAcceptEncoding  = "accept-encoding"
	HeaderAllow           = "allow"
	HeaderContentEncoding = "content-encoding"
	HeaderContentLength   = "content-length"
	HeaderContentType     = "content-type"
	HeaderUserAgent       = "user-agent"
)

const (
	ContentTypeText   = "text/plain"
	ContentTypeStream = "application/octet-stream"
)
