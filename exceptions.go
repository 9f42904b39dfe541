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
	"errors"
	"strconv"
)

var (
	ErrEmptyRequest         error = errors.New("empty request")
	ErrMalformedRequestLine error = errors.New("malformed request line")
	ErrMalformedHeader      error = errors.New("malformed header")
	ErrRequestTooLarge      error = errors.New("request exceeds read buffer")
	ErrIncompleteBody       error = errors.New("request body shorter than content-length")
	ErrMissingHeader        error = errors.New("missing required header")
	ErrMissingSegment       error = errors.New("missing path segment")
	ErrUnknownStatusCode    error = errors.New("unknown status code")
	ErrFileNotFound         error = errors.New("file not found")
	ErrServerClosed         error = errors.New("server closed")
)

// StatusError 可以直接映射为响应状态码的错误
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return strconv.Itoa(e.Code) + " " + StatusText(e.Code) + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError 使用状态码包装错误
func NewStatusError(code int, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

// StatusCodeOf 获取错误对应的响应状态码
// 无法识别的错误统一视为500
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrMalformedRequestLine), errors.Is(err, ErrMalformedHeader),
		errors.Is(err, ErrMissingHeader), errors.Is(err, ErrMissingSegment),
		errors.Is(err, ErrIncompleteBody):
		return StatusBadRequest
	case errors.Is(err, ErrRequestTooLarge):
		return StatusRequestEntityTooLarge
	case errors.Is(err, ErrFileNotFound):
		return StatusNotFound
	}
	return StatusInternalServerError
}
