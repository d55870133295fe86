// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 executor 提供带能力校验与超时约束的任务执行器。

# 执行流程

每次调用依次经历 Verifying、Running，最终为成功、失败或超时之一：

 1. Verifying：Agent 必须空闲，且每项能力要求都有同名能力满足
    proficiency >= min_proficiency。不满足时直接返回 ValidationError，
    不执行任务体，也不修改 Agent。
 2. Running：任务体提交到共享工作池，与超时计时器竞速。计时器先到时
    返回 TimeoutError，任务体的 ctx 被取消，其结果被丢弃。
 3. 无论结果如何都记录端到端耗时并发送 TaskCompleted。
 4. 成功时相关能力熟练度按 learning_rate * 0.1 上调并消耗能量；失败时
    按 learning_rate * 0.05 下调。两种情况都记录一条经验。

执行历史最多保留 1000 条。OpenTelemetry span 与指标随每次执行记录。
*/
package executor
