// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ImageFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 imagegen、api、config
等上层模块提供统一的错误契约。所有跨包共享的错误码均定义于此，
以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、VendorCode、
    Retryable、Provider 标记与错误链（Cause）

# 主要能力

  - 错误构造：NewError，链式 WithCause / WithHTTPStatus /
    WithVendorCode / WithRetryable / WithProvider
  - 错误检查：IsRetryable / GetErrorCode（对非 *Error 返回零值）
  - 错误码覆盖配置、请求校验、鉴权、Key 耗尽、限流、配额、内容过滤、
    上游失败、超时、预算耗尽等引擎全部失败形态
*/
package types
