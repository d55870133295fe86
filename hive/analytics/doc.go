// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 analytics 提供任务执行统计、系统健康评估与蜂巢指标收集。

# Tracker

Tracker 记录每个任务的生命周期（创建、分配、开始、完成）以及执行结果
历史，维护累计成功数、失败数、耗时总和，以及最近 100 个结果的滑动窗口。
全部聚合状态由一个 sync.RWMutex 保护，读操作之间互不阻塞。

# 健康评估

	health = (success_rate + queue_efficiency + (1 - workload_balance)) / 3

queue_efficiency 衡量遗留队列与工作窃取队列的占比差，空队列视为 1。
workload_balance 为各 Agent 执行数与均值的平均相对偏差，0 表示完全均衡。
每个越界阈值（成功率 < 0.8、队列效率 < 0.7、不均衡度 > 0.3）产生一条建议。

# Collector

Collector 按事件类型计数，维护 Agent、任务与进程维度的 HiveMetrics，
周期性写入最多 1000 个历史快照，并据此计算增长率与趋势。
*/
package analytics
