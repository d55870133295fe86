// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 checkpoint 提供蜂巢快照的持久化与恢复。

# 存储

  - GormStore：hive_checkpoints 表（由迁移创建），快照正文为 JSON 文本，
    支持 postgres、mysql、sqlite。
  - RedisStore：正文为字符串键，每个蜂巢一个按创建时间排序的有序集合索引。

两种存储在没有快照时均返回 NOT_FOUND 错误。

# Manager

Manager 按 Config.Interval 周期保存快照，只保留最近 Config.Retain 个；
Restore 读取最新快照并交给 Target 恢复 Agent 与未完成任务。
*/
package checkpoint
