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
	"io"
	"net/url"
	"strings"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/spaolacci/murmur3"
)

// RFPDupeFilterInterface request 对象指纹计算和布隆过滤器去重
type RFPDupeFilterInterface interface {
	// Fingerprint request指纹计算
	Fingerprint(request *Request) ([]byte, error)

	// DoDupeFilter 请求已经出现过时返回true
	DoDupeFilter(request *Request) (bool, error)
}

// RFPDupeFilter 去重组件
type RFPDupeFilter struct {
	mu          sync.Mutex
	bloomFilter *bloom.BloomFilter
}

// NewRFPDupeFilter 新建去重组件
// bloomP容错率
// bloomN数据规模
func NewRFPDupeFilter(bloomP float64, bloomN uint) *RFPDupeFilter {
	return &RFPDupeFilter{
		bloomFilter: bloom.NewWithEstimates(bloomN, bloomP),
	}
}

// canonicalizePath 查询参数按key排序,无法解析的路径原样返回
func (f *RFPDupeFilter) canonicalizePath(path string) string {
	u, err := url.ParseRequestURI(path)
	if err != nil {
		return path
	}
	u.RawQuery = u.Query().Encode()
	u.Fragment = ""
	return u.String()
}

// encodeHeader 请求头序列化
func (f *RFPDupeFilter) encodeHeader(request *Request) string {
	h := request.Header
	if h == nil {
		return ""
	}
	var buf bytes.Buffer
	for _, k := range h.Keys() {
		buf.WriteString(fmt.Sprintf("%s:%s;\n", strings.ToUpper(k), strings.ToUpper(h[k])))
	}
	return buf.String()
}

// Fingerprint 计算指纹
func (f *RFPDupeFilter) Fingerprint(request *Request) ([]byte, error) {
	if request == nil || request.Path == "" {
		return nil, fmt.Errorf("request is nil or has no path")
	}
	sha := murmur3.New128()
	if _, err := io.WriteString(sha, string(request.Method)); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(sha, f.canonicalizePath(request.Path)); err != nil {
		return nil, err
	}
	if request.Body != nil {
		sha.Write(request.Body)
	}
	if len(request.Header) != 0 {
		if _, err := io.WriteString(sha, f.encodeHeader(request)); err != nil {
			return nil, err
		}
	}
	return sha.Sum(nil), nil
}

// DoDupeFilter 通过布隆过滤器对request对象进行去重处理
func (f *RFPDupeFilter) DoDupeFilter(request *Request) (bool, error) {
	data, err := f.Fingerprint(request)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bloomFilter.TestOrAdd(data), nil
}
