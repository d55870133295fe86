// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 queue 提供待执行任务的优先级队列与工作窃取队列。

# 排序规则

critical 任务插在队首（位于已有 critical 之后），high 任务紧随 critical 段，
medium/low 追加到队尾；同一优先级内保持 FIFO。

# 工作窃取

启用后，任务进入全局优先级队列；指定了已登记 Agent 的任务进入该 Agent
的本地队列（high/critical 走优先通道）。DequeueFor 先取 critical 任务
（本地优先，其次全局与遗留），再依次尝试本地队列、全局队列、遗留队列，
最后随机挑选积压超过 1 的其他 Agent，从其普通通道尾部窃取。

# 容量

队列总长度达到容量时 Enqueue 返回 ResourceExhausted("task_queue")。
利用率超过 90% 为 critical，超过 70% 为 warning。
*/
package queue
