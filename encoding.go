// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package nephila

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"strings"

	"github.com/wxnacy/wgo/arrays"
)

// EncodingGzip 唯一支持的内容编码
const EncodingGzip = "gzip"

// ContentNegotiator 根据客户端的Accept-Encoding决定响应体的编码
type ContentNegotiator interface {
	// Negotiate 返回编码后的响应体以及Content-Encoding的值,
	// 不需要编码时原样返回响应体并且编码值为空
	Negotiate(acceptEncoding string, body []byte) ([]byte, string, error)
}

type encoder func(body []byte) ([]byte, error)

// GzipNegotiator 只支持gzip的协商器
type GzipNegotiator struct {
	level     int
	supported []string
	encoders  map[string]encoder
}

// NewGzipNegotiator level为gzip压缩等级,非法等级回退为默认等级
func NewGzipNegotiator(level int) *GzipNegotiator {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	n := &GzipNegotiator{
		level:     level,
		supported: []string{EncodingGzip},
	}
	n.encoders = map[string]encoder{
		EncodingGzip: n.gzip,
	}
	return n
}

// gzip 压缩结果是确定的:gzip头中不写入文件名和修改时间
func (n *GzipNegotiator) gzip(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, n.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AcceptedEncodings 按照客户端给出的顺序返回服务端支持的编码,重复的编码只保留一次
func (n *GzipNegotiator) AcceptedEncodings(acceptEncoding string) []string {
	accepted := make([]string, 0, len(n.supported))
	if strings.TrimSpace(acceptEncoding) == "" {
		return accepted
	}
	for _, token := range strings.Split(acceptEncoding, ",") {
		if idx := strings.IndexByte(token, ';'); idx >= 0 {
			token = token[:idx]
		}
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if arrays.ContainsString(n.supported, token) == -1 {
			continue
		}
		if arrays.ContainsString(accepted, token) != -1 {
			continue
		}
		accepted = append(accepted, token)
	}
	return accepted
}

// Negotiate 实现ContentNegotiator
func (n *GzipNegotiator) Negotiate(acceptEncoding string, body []byte) ([]byte, string, error) {
	accepted := n.AcceptedEncodings(acceptEncoding)
	if len(accepted) == 0 {
		return body, "", nil
	}
	encoded := body
	for _, name := range accepted {
		var err error
		encoded, err = n.encoders[name](encoded)
		if err != nil {
			return nil, "", fmt.Errorf("%s encode error %w", name, err)
		}
	}
	return encoded, strings.Join(accepted, ", "), nil
}
