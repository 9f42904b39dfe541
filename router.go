// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package nephila

import (
	"compress/gzip"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var routerLog *logrus.Entry = GetLogger("router")

// RouteHandler 路由处理函数
// segments为去掉开头空段之后的路径分段,返回的错误通过StatusCodeOf转换为响应
type RouteHandler func(req *Request, segments []string) (*Response, error)

type routeKey struct {
	segment string
	method  RequestMethod
}

// Router 以(第一个路径分段, 请求方式)为key的路由表
type Router struct {
	routes     map[routeKey]RouteHandler
	allowed    map[string][]string
	files      FileStore
	negotiator ContentNegotiator
}

// RouterOption 路由构造过程中的可选参数
type RouterOption func(r *Router)

// RouterWithNegotiator 自定义内容协商器
func RouterWithNegotiator(negotiator ContentNegotiator) RouterOption {
	return func(r *Router) {
		r.negotiator = negotiator
	}
}

// NewRouter 构造路由,files为nil时不注册文件路由
func NewRouter(files FileStore, opts ...RouterOption) *Router {
	r := &Router{
		routes:     make(map[routeKey]RouteHandler),
		allowed:    make(map[string][]string),
		files:      files,
		negotiator: NewGzipNegotiator(gzip.DefaultCompression),
	}
	for _, o := range opts {
		o(r)
	}
	r.Handle("", AnyMethod, r.root)
	r.Handle("echo", AnyMethod, r.echo)
	r.Handle("user-agent", AnyMethod, r.userAgent)
	if files != nil {
		r.Handle("files", GET, r.readFile)
		r.Handle("files", POST, r.writeFile)
	}
	return r
}

// Handle 注册路由,method为AnyMethod时匹配所有请求方式
func (r *Router) Handle(segment string, method RequestMethod, handler RouteHandler) {
	r.routes[routeKey{segment, method}] = handler
	if method != AnyMethod {
		r.allowed[segment] = append(r.allowed[segment], string(method))
		sort.Strings(r.allowed[segment])
	}
}

func splitPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

// match 精确匹配优先,其次是AnyMethod;
// 分段存在但请求方式不匹配时返回405
func (r *Router) match(segment string, method RequestMethod) (RouteHandler, int) {
	if h, ok := r.routes[routeKey{segment, method}]; ok {
		return h, StatusOK
	}
	if h, ok := r.routes[routeKey{segment, AnyMethod}]; ok {
		return h, StatusOK
	}
	if _, ok := r.allowed[segment]; ok {
		return nil, StatusMethodNotAllowed
	}
	return nil, StatusNotFound
}

// Route 根据路径和请求方式分发请求
func (r *Router) Route(path string, method RequestMethod, header Header, body []byte) *Response {
	return r.Dispatch(&Request{Method: method, Path: path, Version: HTTPVersion, Header: header, Body: body})
}

// Dispatch 分发已经解析的请求,请求原样交给处理函数
func (r *Router) Dispatch(req *Request) *Response {
	segments := splitPath(req.Path)
	handler, status := r.match(segments[0], req.Method)
	if handler == nil {
		if status == StatusMethodNotAllowed {
			return NewResponse(status, ResponseWithHeader(HeaderAllow, strings.Join(r.allowed[segments[0]], ", ")))
		}
		return NewResponse(status)
	}
	if req.Header == nil {
		req.Header = make(Header)
	}
	resp, err := handler(req, segments)
	if err != nil {
		code := StatusCodeOf(err)
		routerLog.WithField("path", req.Path).Debugf("%s %s handle error %s", req.Method, req.Path, err.Error())
		return NewResponse(code)
	}
	return resp
}

func (r *Router) root(_ *Request, _ []string) (*Response, error) {
	return NewResponse(StatusOK), nil
}

func (r *Router) echo(req *Request, segments []string) (*Response, error) {
	if len(segments) < 2 {
		return nil, fmt.Errorf("%w: echo text", ErrMissingSegment)
	}
	text := segments[1]
	if text == "" {
		return NewResponse(StatusOK), nil
	}
	body, encoding, err := r.negotiator.Negotiate(req.Header.Get(HeaderAcceptEncoding), []byte(text))
	if err != nil {
		return nil, NewStatusError(StatusInternalServerError, err)
	}
	opts := []ResponseOption{ResponseWithBody(body)}
	if encoding != "" {
		opts = append(opts, ResponseWithHeader(HeaderContentEncoding, encoding))
	}
	return NewResponse(StatusOK, opts...), nil
}

func (r *Router) userAgent(req *Request, _ []string) (*Response, error) {
	agent, ok := req.Header.Lookup(HeaderUserAgent)
	if !ok {
		return nil, fmt.Errorf("%w: User-Agent", ErrMissingHeader)
	}
	return NewResponse(StatusOK, ResponseWithBody([]byte(agent))), nil
}

func fileName(segments []string) (string, error) {
	if len(segments) < 2 || segments[1] == "" {
		return "", fmt.Errorf("%w: file name", ErrMissingSegment)
	}
	name := segments[1]
	if name == "." || name == ".." {
		return "", NewStatusError(StatusBadRequest, fmt.Errorf("invalid file name %q", name))
	}
	return name, nil
}

func (r *Router) readFile(_ *Request, segments []string) (*Response, error) {
	name, err := fileName(segments)
	if err != nil {
		return nil, err
	}
	data, err := r.files.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return NewResponse(StatusOK,
		ResponseWithHeader(HeaderContentType, ContentTypeStream),
		ResponseWithHeader(HeaderContentLength, strconv.Itoa(len(data))),
		ResponseWithBody(data)), nil
}

func (r *Router) writeFile(req *Request, segments []string) (*Response, error) {
	name, err := fileName(segments)
	if err != nil {
		return nil, err
	}
	if err := r.files.WriteFile(name, req.Body); err != nil {
		return nil, NewStatusError(StatusInternalServerError, err)
	}
	return NewResponse(StatusCreated), nil
}
