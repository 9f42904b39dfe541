// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package nephila

import (
	"sort"
	"strings"
)

// Header 请求头或响应头
// key统一保存为小写,查询时大小写不敏感
type Header map[string]string

// Get 获取请求头,不存在时返回空字符串
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Lookup 获取请求头并返回是否存在
func (h Header) Lookup(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	v, ok := h[strings.ToLower(key)]
	return v, ok
}

// Set 设置请求头,已存在的值会被覆盖
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除请求头
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Clone 深拷贝
func (h Header) Clone() Header {
	clone := make(Header, len(h))
	for k, v := range h {
		clone[k] = v
	}
	return clone
}

// Keys 按字典序返回所有的key
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
