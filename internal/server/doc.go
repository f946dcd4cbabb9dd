// 版权所有 2024 ImageFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 监听的生命周期。

引擎会起最多两个监听: 业务端口承载生成 API, 管理端口承载配置
热重载与 Prometheus 指标。两者共用同一个 Manager 实现: 非阻塞
启动、SIGINT/SIGTERM 信号监听、带超时的优雅关闭 (生成请求耗时
长, 关闭时要等在途请求收尾)。

TLS 终结交给前置反向代理, 这里只有明文 HTTP。

  - Manager: 封装 net/http.Server, 提供 Start/Shutdown/
    WaitForShutdown 与 Errors 异步错误通道。
  - Config: 监听地址、读写/空闲超时、请求头上限与关闭超时。
*/
package server
