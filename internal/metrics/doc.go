// 版权所有 2024 ImageFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
生成请求、密钥池、限流与图像产出四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter 与 Histogram 向量指标，
    按业务域分组管理。

# 主要能力

  - 生成请求指标：请求总数、单次尝试耗时、单请求尝试次数、
    重试计数，按 provider/model/status 分组。
  - 密钥池指标：密钥轮换与密钥池耗尽计数，按 provider 分组。
  - 限流指标：限流拒绝计数，按规则分组。
  - 图像产出指标：产出图像计数（URL/本地）、远端下载计数。
*/
package metrics
