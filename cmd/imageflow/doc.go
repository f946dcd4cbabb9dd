// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ImageFlow 服务端程序入口。

# 概述

cmd/imageflow 是图像生成引擎的可执行入口，提供 HTTP API 服务、
一次性生成、健康检查和版本查询等子命令。程序支持 YAML 配置文件
加载、结构化日志（zap）、Prometheus 指标采集以及配置热重载。

# 核心类型

  - Server           — 主服务器，包装 Engine 的 HTTP API 并管理优雅关闭
  - ServerOptions    — serve 命令的运行参数（地址、鉴权、CORS、限流）
  - Middleware       — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter   — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、generate（一次性生成）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、APIKeyAuth（仅 X-API-Key 请求头）
  - 管理 API：AdminPort > 0 时在独立端口暴露配置热重载与 /metrics
  - 优雅关闭：信号监听 → 关闭 HTTP → Engine.Close
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
