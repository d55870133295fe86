// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 task 定义任务模型、优先级与单调状态机。

# 概述

任务以 pending 状态创建，沿
pending → assigned → running → completed|failed 推进，
失败后可经 retrying → assigned 重新调度。completed 为终态，
任何回退到 pending 的转换都会被拒绝。

# 核心类型

  - Task：任务本体，含能力要求、依赖、截止时间与状态历史。
  - Priority：low < medium < high < critical，JSON 使用小写名称。
  - Status / CanTransition：状态枚举与合法转换表。
  - ExecutionResult：单次执行的不可变结果。
  - CreateRequest：JSON 创建请求，Build 在任何状态变更前完成校验。
*/
package task
