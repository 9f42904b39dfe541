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
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var headerTerminator = []byte(CRLF + CRLF)

// Request 解析后的请求
type Request struct {
	// Method 请求方式
	Method RequestMethod
	// Path 请求路径,总是以/开头
	Path string
	// Version 协议版本,例如HTTP/1.1
	Version string
	// Header 请求头,key为小写
	Header Header
	// Body 请求体,可能为空
	Body []byte
}

// RequestOption 构造请求时的可选参数
type RequestOption func(r *Request)

// RequestWithHeader 设置请求头
func RequestWithHeader(header map[string]string) RequestOption {
	return func(r *Request) {
		for k, v := range header {
			r.Header.Set(k, v)
		}
	}
}

// RequestWithBody 设置请求体
func RequestWithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// RequestWithVersion 设置协议版本
func RequestWithVersion(version string) RequestOption {
	return func(r *Request) {
		r.Version = version
	}
}

// NewRequest 构造一个请求,主要用于客户端和测试
func NewRequest(path string, method RequestMethod, opts ...RequestOption) *Request {
	request := &Request{
		Method:  method,
		Path:    path,
		Version: HTTPVersion,
		Header:  make(Header),
		Body:    nil,
	}
	for _, o := range opts {
		o(request)
	}
	return request
}

// Bytes 将请求编码为报文
// 请求体非空且没有设置content-length时自动补充
func (r *Request) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%s %s %s%s", r.Method, r.Path, r.Version, CRLF))
	header := r.Header.Clone()
	if len(r.Body) > 0 {
		if _, ok := header.Lookup(HeaderContentLength); !ok {
			header.Set(HeaderContentLength, strconv.Itoa(len(r.Body)))
		}
	}
	for _, k := range header.Keys() {
		buf.WriteString(k + ": " + header[k] + CRLF)
	}
	buf.WriteString(CRLF)
	buf.Write(r.Body)
	return buf.Bytes()
}

// ParseRequestLine 解析请求行
// 请求行必须由空格分隔为三个非空的部分
func ParseRequestLine(line string) (RequestMethod, string, string, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	return RequestMethod(parts[0]), parts[1], parts[2], nil
}

// parseHeaderLine 解析单行请求头,没有冒号或者名字为空都视为错误
func parseHeaderLine(line string) (string, string, error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedHeader, line)
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedHeader, line)
	}
	return key, strings.TrimSpace(line[idx+1:]), nil
}

// ParseRequest 将原始报文解析为Request
// 第一个空行之后的所有字节都是请求体;
// 请求头格式错误或者请求体不足content-length时直接失败,不会跳过
func ParseRequest(raw []byte) (*Request, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyRequest
	}
	head := raw
	var body []byte
	if idx := bytes.Index(raw, headerTerminator); idx >= 0 {
		head = raw[:idx]
		body = append([]byte{}, raw[idx+len(headerTerminator):]...)
	}
	lines := strings.Split(string(head), CRLF)
	method, path, version, err := ParseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}
	header := make(Header)
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		key, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		header.Set(key, value)
	}
	if v, ok := header.Lookup(HeaderContentLength); ok {
		if n, err := strconv.Atoi(v); err == nil && len(body) < n {
			return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrIncompleteBody, n, len(body))
		}
	}
	return &Request{
		Method:  method,
		Path:    path,
		Version: version,
		Header:  header,
		Body:    body,
	}, nil
}

// declaredContentLength 从请求头中读取content-length,不存在或者非法时返回0
func declaredContentLength(head []byte) int {
	for _, line := range strings.Split(string(head), CRLF)[1:] {
		key, value, err := parseHeaderLine(line)
		if err != nil || !strings.EqualFold(key, HeaderContentLength) {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// requestComplete 请求头已经读取完毕并且请求体达到content-length
func requestComplete(buf []byte) bool {
	idx := bytes.Index(buf, headerTerminator)
	if idx < 0 {
		return false
	}
	return len(buf)-idx-len(headerTerminator) >= declaredContentLength(buf[:idx])
}

// ReadRequest 从连接中读取一个请求,最多读取limit字节
// 读取到完整的请求头以及content-length声明的请求体后返回;
// 对端关闭或者读取超时时,已经读到的数据会原样返回交给解析器处理,
// 请求体不足content-length由解析器返回ErrIncompleteBody
func ReadRequest(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultReadBufferSize
	}
	buf := make([]byte, 0, limit)
	chunk := make([]byte, limit)
	for {
		n, err := r.Read(chunk[:limit-len(buf)])
		buf = append(buf, chunk[:n]...)
		if requestComplete(buf) {
			return buf, nil
		}
		if err != nil {
			if len(buf) == 0 {
				if errors.Is(err, io.EOF) {
					return nil, ErrEmptyRequest
				}
				return nil, err
			}
			return buf, nil
		}
		if len(buf) >= limit {
			return buf, fmt.Errorf("%w: limit %d bytes", ErrRequestTooLarge, limit)
		}
	}
}
