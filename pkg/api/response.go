package api

import "zenstyle/pkg/errx"

// Response 命令行 -json 输出的统一信封
type Response[T any] struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// OK 构造成功响应
func OK[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

// Fail 构造失败响应
func Fail[T any](code, message string) Response[T] {
	return Response[T]{
		Success: false,
		Code:    code,
		Message: message,
	}
}

// FromError 按错误码构造失败响应，非 errx 错误归为 INTERNAL
func FromError[T any](err error) Response[T] {
	code := string(errx.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	return Fail[T](code, err.Error())
}

// Result 根据 err 选择成功或失败响应
func Result[T any](data T, err error) Response[T] {
	if err != nil {
		return FromError[T](err)
	}
	return OK(data)
}

// EmptyData 用于无业务数据返回的场景
type EmptyData struct{}
