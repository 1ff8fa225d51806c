package generation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 生成后端错误分类
// 重试逻辑只根据 Kind 分支，后端错误码的识别集中在本包内完成
type ErrorKind int

const (
	// KindUnknown 未识别错误，不重试
	KindUnknown ErrorKind = iota
	// KindSafety 内容安全过滤命中（脱敏后可重试一次）
	KindSafety
	// KindTransient 临时不可用（限流、超时），退避重试
	KindTransient
	// KindBackendFault 后端内部故障，固定间隔重试
	KindBackendFault
	// KindInvalidInput 请求本身不合法（如缺少必需的起始图片），不重试
	KindInvalidInput
)

// 后端文档中的错误码
const (
	CodeSafety       = "E005"
	CodeTransient    = "E004"
	CodeBackendFault = "E003"
	CodeMissingImage = "MISSING_IMAGE"
)

// Error 生成后端的结构化错误
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("generation: [%s] %s", e.Code, e.Message)
	}
	return "generation: " + e.Message
}

// KindOf 从任意 error 中提取错误分类
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// classifyMessage 从后端返回的人类可读错误信息中识别错误码
// 错误码只在这里匹配一次，调用方拿到的是带 Kind 的结构化错误
func classifyMessage(msg string) *Error {
	switch {
	case strings.Contains(msg, CodeSafety):
		return &Error{Kind: KindSafety, Code: CodeSafety, Message: msg}
	case strings.Contains(msg, CodeTransient):
		return &Error{Kind: KindTransient, Code: CodeTransient, Message: msg}
	case strings.Contains(msg, CodeBackendFault):
		return &Error{Kind: KindBackendFault, Code: CodeBackendFault, Message: msg}
	default:
		return &Error{Kind: KindUnknown, Message: msg}
	}
}

// classifyStatus 根据 HTTP 状态码分类错误
func classifyStatus(status int, body string) *Error {
	msg := fmt.Sprintf("backend returned status %d: %s", status, body)
	switch {
	case status == 429 || status == 503:
		return &Error{Kind: KindTransient, Message: msg}
	case status >= 500:
		return &Error{Kind: KindBackendFault, Message: msg}
	default:
		return &Error{Kind: KindUnknown, Message: msg}
	}
}
