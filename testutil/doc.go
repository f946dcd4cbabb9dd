// Copyright 2026 ImageFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 ImageFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor /
    WaitForChannel，支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual，
    简化测试数据构造与比对

# 子包

  - testutil/mocks: Mock 实现，包括 ImageStore（记录保存的图像
    字节并返回可预测路径，支持按次错误注入）

# 使用示例

	ctx := testutil.TestContext(t)
	store := mocks.NewImageStore()
	path, err := store.SaveBase64(ctx, payload)
*/
package testutil
