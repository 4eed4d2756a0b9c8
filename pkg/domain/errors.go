package domain

import "errors"

// 样式目录相关错误
var (
	ErrInvalidCatalog = errors.New("invalid style catalog")
)

// 设置相关错误
var (
	ErrUnknownSetting  = errors.New("unknown setting")
	ErrUnknownList     = errors.New("unknown list")
	ErrInvalidHostname = errors.New("invalid hostname")
	ErrInvalidURL      = errors.New("invalid repository url")
)

// 更新相关错误
var (
	ErrUpdateInProgress = errors.New("update already in progress")
	ErrFetchFailed      = errors.New("fetch styles failed")
)
