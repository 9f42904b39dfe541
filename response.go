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
	"fmt"
	"strconv"
	"strings"
)

// Response 路由处理后生成的响应
// 构造完成后不再修改,header只能通过Header()获取副本
type Response struct {
	status int
	header Header
	body   []byte
}

// ResponseOption 构造响应时的可选参数
type ResponseOption func(r *Response)

// ResponseWithHeader 设置单个响应头
func ResponseWithHeader(key, value string) ResponseOption {
	return func(r *Response) {
		r.header.Set(key, value)
	}
}

// ResponseWithBody 设置响应体
func ResponseWithBody(body []byte) ResponseOption {
	return func(r *Response) {
		r.body = body
	}
}

// NewResponse 构造响应
func NewResponse(status int, opts ...ResponseOption) *Response {
	response := &Response{
		status: status,
		header: make(Header),
	}
	for _, o := range opts {
		o(response)
	}
	return response
}

// Status 响应状态码
func (r *Response) Status() int {
	return r.status
}

// Header 响应头的副本,不包含序列化时派生的响应头
func (r *Response) Header() Header {
	return r.header.Clone()
}

// Body 响应体
func (r *Response) Body() []byte {
	return r.body
}

// Bytes 序列化为报文
func (r *Response) Bytes() ([]byte, error) {
	return BuildResponse(r.status, r.header, r.body)
}

// BuildResponse 将状态码、响应头和响应体序列化为报文
// 响应体非空时content-length总是按照字节数重新计算,
// content-type未设置时默认为text/plain;
// 响应头名称以小写输出并按字典序排列
func BuildResponse(status int, header Header, body []byte) ([]byte, error) {
	phrase := StatusText(status)
	if phrase == "" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatusCode, status)
	}
	h := make(Header, len(header)+2)
	for k, v := range header {
		h.Set(k, v)
	}
	if len(body) > 0 {
		if h.Get(HeaderContentType) == "" {
			h.Set(HeaderContentType, ContentTypeText)
		}
		h.Set(HeaderContentLength, strconv.Itoa(len(body)))
	}
	var buf bytes.Buffer
	buf.Grow(64 + len(body))
	buf.WriteString(HTTPVersion + " " + strconv.Itoa(status) + " " + phrase + CRLF)
	for _, k := range h.Keys() {
		buf.WriteString(k + ": " + h[k] + CRLF)
	}
	buf.WriteString(CRLF)
	buf.Write(body)
	return buf.Bytes(), nil
}

// ParseStatusLine 解析状态行
func ParseStatusLine(line string) (string, int, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("malformed status line: %q", line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("invalid status code: %q", parts[1])
	}
	phrase := ""
	if len(parts) == 3 {
		phrase = parts[2]
	}
	return parts[0], status, phrase, nil
}

// ParseResponse 将报文解析为Response
// content-length存在时按照其长度截取响应体
func ParseResponse(raw []byte) (*Response, error) {
	idx := bytes.Index(raw, headerTerminator)
	if idx < 0 {
		return nil, fmt.Errorf("incomplete response head")
	}
	lines := strings.Split(string(raw[:idx]), CRLF)
	_, status, _, err := ParseStatusLine(lines[0])
	if err != nil {
		return nil, err
	}
	header := make(Header)
	for _, line := range lines[1:] {
		key, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		header.Set(key, value)
	}
	body := raw[idx+len(headerTerminator):]
	if cl, ok := header.Lookup(HeaderContentLength); ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return nil, fmt.Errorf("invalid content-length %q for %d body bytes", cl, len(body))
		}
		body = body[:n]
	}
	return &Response{
		status: status,
		header: header,
		body:   append([]byte{}, body...),
	}, nil
}
