package models

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	KindPermission        ErrorKind = "permission"
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	KindCapture           ErrorKind = "capture"
	KindNetwork           ErrorKind = "network"
	KindServer            ErrorKind = "server"
	KindEncoding          ErrorKind = "encoding"
	KindInitialization    ErrorKind = "initialization"
	KindTimeout           ErrorKind = "timeout"
)

// Error 分类错误
// Op 描述失败的操作，StatusCode 仅对 KindServer 有意义
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

// 用于 errors.Is 的哨兵错误，只比较 Kind
var (
	ErrPermission        = &Error{Kind: KindPermission}
	ErrDeviceUnavailable = &Error{Kind: KindDeviceUnavailable}
	ErrCapture           = &Error{Kind: KindCapture}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrServer            = &Error{Kind: KindServer}
	ErrEncoding          = &Error{Kind: KindEncoding}
	ErrInitialization    = &Error{Kind: KindInitialization}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindServer && e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配哨兵错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// NewError 创建分类错误
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewServerError 创建带 HTTP 状态码的服务器错误
func NewServerError(op string, status int) *Error {
	return &Error{Kind: KindServer, Op: op, StatusCode: status}
}

// KindOf 返回错误链中第一个分类错误的 Kind，未分类时返回空串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCode 返回服务器错误的状态码
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindServer {
		return e.StatusCode
	}
	return 0
}
