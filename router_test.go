package nephila

import (
	"compress/gzip"
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

type failingNegotiator struct{}

func (failingNegotiator) Negotiate(_ string, _ []byte) ([]byte, string, error) {
	return nil, "", errors.New("encoder broken")
}

func newTestRouter() (*Router, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewRouter(NewFileStoreWithFs(fs)), fs
}

func TestRouterBasicRoutes(t *testing.T) {
	router, _ := newTestRouter()
	convey.Convey("test root", t, func() {
		resp := router.Route("/", GET, nil, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusOK)
		convey.So(resp.Body(), convey.ShouldBeEmpty)
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 200 OK\r\n\r\n")
	})
	convey.Convey("test root accepts any method", t, func() {
		convey.So(router.Route("/", POST, nil, nil).Status(), convey.ShouldEqual, StatusOK)
	})
	convey.Convey("test unknown path", t, func() {
		resp := router.Route("/abcdefg", GET, nil, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusNotFound)
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 404 Not Found\r\n\r\n")
	})
	convey.Convey("test echo", t, func() {
		resp := router.Route("/echo/abc", GET, Header{}, nil)
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 3\r\ncontent-type: text/plain\r\n\r\nabc")
	})
	convey.Convey("test echo keeps only the second segment", t, func() {
		resp := router.Route("/echo/abc/def", GET, nil, nil)
		convey.So(string(resp.Body()), convey.ShouldEqual, "abc")
	})
	convey.Convey("test echo empty text", t, func() {
		resp := router.Route("/echo/", GET, Header{HeaderAcceptEncoding: "gzip"}, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusOK)
		convey.So(resp.Body(), convey.ShouldBeEmpty)
		convey.So(resp.Header().Get(HeaderContentEncoding), convey.ShouldBeEmpty)
	})
	convey.Convey("test echo without text", t, func() {
		convey.So(router.Route("/echo", GET, nil, nil).Status(), convey.ShouldEqual, StatusBadRequest)
	})
	convey.Convey("test echo gzip", t, func() {
		resp := router.Route("/echo/abc", GET, Header{HeaderAcceptEncoding: "invalid-1, gzip, invalid-2"}, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusOK)
		convey.So(resp.Header().Get(HeaderContentEncoding), convey.ShouldEqual, "gzip")
		plain, err := gunzip(resp.Body())
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(plain), convey.ShouldEqual, "abc")
		raw, _ := resp.Bytes()
		parsed, err := ParseResponse(raw)
		convey.So(err, convey.ShouldBeNil)
		convey.So(parsed.Header().Get(HeaderContentType), convey.ShouldEqual, ContentTypeText)
		convey.So(parsed.Body(), convey.ShouldResemble, resp.Body())
	})
	convey.Convey("test echo unsupported encoding", t, func() {
		resp := router.Route("/echo/abc", GET, Header{HeaderAcceptEncoding: "invalid-encoding"}, nil)
		convey.So(string(resp.Body()), convey.ShouldEqual, "abc")
		_, ok := resp.Header().Lookup(HeaderContentEncoding)
		convey.So(ok, convey.ShouldBeFalse)
	})
	convey.Convey("test echo encoder failure", t, func() {
		r := NewRouter(nil, RouterWithNegotiator(failingNegotiator{}))
		resp := r.Route("/echo/abc", GET, Header{HeaderAcceptEncoding: "gzip"}, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusInternalServerError)
	})
	convey.Convey("test user agent", t, func() {
		resp := router.Route("/user-agent", GET, Header{"user-agent": "foobar/1.2.3"}, nil)
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 12\r\ncontent-type: text/plain\r\n\r\nfoobar/1.2.3")
	})
	convey.Convey("test user agent missing", t, func() {
		convey.So(router.Route("/user-agent", GET, nil, nil).Status(), convey.ShouldEqual, StatusBadRequest)
	})
	convey.Convey("test dispatch parsed request", t, func() {
		req, err := ParseRequest([]byte("GET /user-agent HTTP/1.1\r\nUser-Agent: curl/7.64.1\r\n\r\n"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(router.Dispatch(req).Body()), convey.ShouldEqual, "curl/7.64.1")
	})
	convey.Convey("test dispatch keeps parsed version", t, func() {
		r := NewRouter(nil)
		var seen *Request
		r.Handle("version", GET, func(req *Request, _ []string) (*Response, error) {
			seen = req
			return NewResponse(StatusOK), nil
		})
		req, err := ParseRequest([]byte("GET /version HTTP/1.0\r\nX-Trace: 1\r\n\r\n"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(r.Dispatch(req).Status(), convey.ShouldEqual, StatusOK)
		convey.So(seen, convey.ShouldPointTo, req)
		convey.So(seen.Version, convey.ShouldEqual, "HTTP/1.0")
		convey.So(seen.Header.Get("x-trace"), convey.ShouldEqual, "1")

		convey.So(r.Route("/version", GET, nil, nil).Status(), convey.ShouldEqual, StatusOK)
		convey.So(seen.Version, convey.ShouldEqual, HTTPVersion)
		convey.So(seen.Header, convey.ShouldNotBeNil)
	})
	convey.Convey("test custom route", t, func() {
		r := NewRouter(nil)
		r.Handle("health", GET, func(_ *Request, _ []string) (*Response, error) {
			return NewResponse(StatusNoContent), nil
		})
		convey.So(r.Route("/health", GET, nil, nil).Status(), convey.ShouldEqual, StatusNoContent)
		resp := r.Route("/health", DELETE, nil, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusMethodNotAllowed)
		convey.So(resp.Header().Get(HeaderAllow), convey.ShouldEqual, "GET")
	})
}

func TestRouterFiles(t *testing.T) {
	convey.Convey("test read file", t, func() {
		router, fs := newTestRouter()
		convey.So(afero.WriteFile(fs, "foo", []byte("Hello, World!"), 0o644), convey.ShouldBeNil)
		resp := router.Route("/files/foo", GET, nil, nil)
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 13\r\ncontent-type: application/octet-stream\r\n\r\nHello, World!")
	})
	convey.Convey("test read empty file", t, func() {
		router, fs := newTestRouter()
		convey.So(afero.WriteFile(fs, "empty", nil, 0o644), convey.ShouldBeNil)
		resp := router.Route("/files/empty", GET, nil, nil)
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 200 OK\r\ncontent-length: 0\r\ncontent-type: application/octet-stream\r\n\r\n")
	})
	convey.Convey("test read missing file", t, func() {
		router, _ := newTestRouter()
		resp := router.Route("/files/non_existent", GET, nil, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusNotFound)
		convey.So(resp.Body(), convey.ShouldBeEmpty)
	})
	convey.Convey("test write file", t, func() {
		router, fs := newTestRouter()
		resp := router.Route("/files/new.txt", POST, Header{}, []byte("12345"))
		raw, _ := resp.Bytes()
		convey.So(string(raw), convey.ShouldEqual, "HTTP/1.1 201 Created\r\n\r\n")
		data, err := afero.ReadFile(fs, "new.txt")
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(data), convey.ShouldEqual, "12345")

		resp = router.Route("/files/new.txt", GET, nil, nil)
		convey.So(string(resp.Body()), convey.ShouldEqual, "12345")
	})
	convey.Convey("test overwrite file", t, func() {
		router, fs := newTestRouter()
		router.Route("/files/a", POST, nil, []byte("first version"))
		router.Route("/files/a", POST, nil, []byte("second"))
		data, _ := afero.ReadFile(fs, "a")
		convey.So(string(data), convey.ShouldEqual, "second")
	})
	convey.Convey("test write failure", t, func() {
		router := NewRouter(NewFileStoreWithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())))
		resp := router.Route("/files/a", POST, nil, []byte("x"))
		convey.So(resp.Status(), convey.ShouldEqual, StatusInternalServerError)
	})
	convey.Convey("test invalid file names", t, func() {
		router, _ := newTestRouter()
		for _, path := range []string{"/files", "/files/", "/files/.", "/files/.."} {
			convey.So(router.Route(path, GET, nil, nil).Status(), convey.ShouldEqual, StatusBadRequest)
			convey.So(router.Route(path, POST, nil, []byte("x")).Status(), convey.ShouldEqual, StatusBadRequest)
		}
	})
	convey.Convey("test files method not allowed", t, func() {
		router, _ := newTestRouter()
		resp := router.Route("/files/a", PUT, nil, nil)
		convey.So(resp.Status(), convey.ShouldEqual, StatusMethodNotAllowed)
		convey.So(resp.Header().Get(HeaderAllow), convey.ShouldEqual, "GET, POST")
	})
	convey.Convey("test files without store", t, func() {
		router := NewRouter(nil, RouterWithNegotiator(NewGzipNegotiator(gzip.BestSpeed)))
		convey.So(router.Route("/files/a", GET, nil, nil).Status(), convey.ShouldEqual, StatusNotFound)
	})
}
