// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 distributor 负责把待执行队列中的任务分派给空闲 Agent。

# 分发

Distribute 只考虑 idle 状态的 Agent，最多取 max_concurrent_tasks 个。
每个 Agent 通过 DequeueFor 取一个依赖已完成、且所属类型未被熔断的任务，
任务依次转换为 assigned、running 后交给执行器，全部任务经 errgroup
并发执行并等待完成。

# 重试

执行失败的任务转为 retrying 并重新入队，直到执行次数达到
max_retry_attempts 后永久失败，max_retry_attempts 为 0 时不重试。
能力校验失败不计入熔断器，只重新入队一次，且不再绑定原 Agent。
重新入队被拒绝（队列已满）时任务永久失败。

# 依赖

Enqueue 拒绝未登记、指向自身或已失败的依赖。任务永久失败时，
队列中直接或间接依赖它的任务一并失败，不会无限等待。

# 熔断

每种任务类型一个熔断器（closed、open、half_open）。连续失败达到阈值后
熔断，该类型的任务留在队列中；恢复超时后进入半开，允许有限的探测执行。能力校验失败的探测不计成败，
名额归还给熔断器。
*/
package distributor
