// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 resource 提供进程资源采样与按硬件等级自适应的资源配置档。

# 采样

ProcessSampler 在私有 Prometheus 注册表上注册进程与 Go 运行时采集器，
每次采样读取 CPU 秒数、常驻内存与 goroutine 数。CPU 使用率为相邻两次
采样的 CPU 秒数增量除以墙钟时间与核数之积，结果限制在 0..1。

# 配置档

Monitor 按核数与内存上限划分 edge_device、desktop、server、cloud 四个等级。
开启自动优化后，CPU > 0.8 或内存 > 0.85 时 Agent 上限乘以 0.8、
更新间隔乘以 1.5；负载回落后逐步恢复到该等级的最优配置档。
*/
package resource
