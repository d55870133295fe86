// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 hive 是蜂巢协调器，把各子系统组合为一个可启动、可关闭的整体。

# 概述

Coordinator 持有协调总线、Agent 注册表、工作窃取队列、任务分发器、
执行器、分析引擎、资源监控与任务检索索引。对外暴露 Agent 与任务的
增删查、状态汇总、分析报告与检查点的快照/恢复。

# 后台进程

Start 之后按各自间隔运行：

  - work_distribution：为空闲 Agent 分派就绪任务。
  - learning：回放最近经验强化模式权重。
  - swarm_coordination：以轮次开始时的位置快照更新蜂群坐标，空闲 Agent 恢复能量。
  - metrics_collection：汇总指标并广播 MetricsUpdate。
  - resource_monitoring：采样资源，越过阈值广播 ResourceAlert。
  - coordination：消费总线通知并计入事件计数器；任务完成时，执行者
    按结果调整对其依赖任务执行者的信任度。

Shutdown 广播 Shutdown 消息后取消全部进程并等待退出。Close 释放
执行器工作池、总线与索引。

# 准入

CreateAgent 在 CPU 使用率超过 Config.CPUThreshold 时返回
RESOURCE_EXHAUSTED；开启 AutoOptimize 时 Agent 总数还受当前硬件
档位的 MaxAgents 限制。
*/
package hive
